/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package ssl layers TLS onto the non blocking sockets of a single
// threaded, event loop driven key value server, covering the three
// traffic classes of the server: client commands, cluster bus and
// replication.
//
// The package owns the per connection sessions, keyed by fd, and wraps
// the read, write and heartbeat paths so that upstream handlers keep
// their plain socket semantics: blocked operations surface as EAGAIN,
// transport errors surface with their OS errno. Handshakes drive
// themselves over event loop readiness callbacks; a scheduler
// synthesizes read events whenever a session still holds buffered input
// the socket will not signal again; certificate rotation keeps one
// previous generation alive for in flight connections; and the RDB
// handoff rebuilds a session on the same fd after a bulk transfer has
// invalidated the write state.
//
// Everything here runs on the loop thread: no method of SSL is safe to
// call from anywhere else.
package ssl

import (
	"container/list"
	"context"
	"time"

	libatm "github.com/nabbar/golib/atomic"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/certificates"
	"github.com/codeboten/redis/reactor"
)

// FuncForceClose closes one upstream connection. It is invoked when a
// certificate rotation evicts sessions of an expired generation. The
// callee must release the fd through CleanupFd and close the socket.
type FuncForceClose func(fd int)

// Callsite is the capability set one handshake call site hands to the
// driver: completion and failure continuations, plus the handler to
// install once the handshake is done. A zero PostMask leaves the fd
// quiescent on completion, for sites where a later step drives it.
type Callsite struct {
	Name        string
	OnDone      func(fd int)
	OnFailed    func(fd int)
	PostHandler reactor.FuncEvent
	PostData    interface{}
	PostMask    reactor.Mask
}

// RdbSlaveHooks parameterizes the slave side of the RDB handoff.
type RdbSlaveHooks struct {
	// OnAck runs on each liveness byte received while the slave loads.
	OnAck func(fd int)

	// OnError runs when the slave sent garbage or the link broke; the
	// callee frees the slave.
	OnError func(fd int)

	// Site drives the renegotiation handshake once the slave reported
	// the load complete.
	Site Callsite
}

// Stats carries the observability counters of the layer.
type Stats struct {
	RepeatedReads         uint64
	RepeatedReadsQueue    int
	RepeatedReadsMaxQueue int
	ConnectionsToCurrent  int
	ConnectionsToPrevious int
}

// SSL is the TLS layer surface consumed by the server core.
type SSL interface {
	// Enabled reports whether the layer is active. When false, every
	// I/O method is a passthrough to the plain socket.
	Enabled() bool

	// ExpectedHostname returns the common name peers are matched
	// against.
	ExpectedHostname() string

	// VerifyHost matches a peer certificate name against the expected
	// hostname, including one level wildcards.
	VerifyHost(peerName string) bool

	// CertDetails returns the validity window and serial of the live
	// certificate.
	CertDetails() (notBefore, notAfter string, serial int64)

	// CipherName returns the cipher negotiated on fd, empty before the
	// handshake completes.
	CipherName(fd int) string

	// SetupClientFd binds a fresh server side session to an accepted
	// command connection. The session counts into the live certificate
	// generation.
	SetupClientFd(fd int) liberr.Error

	// CleanupFd releases the session of fd, sending a close alert when
	// the handshake has completed.
	CleanupFd(fd int)

	// CleanupFdNoShutdown releases the session of fd without a close
	// alert. Used when the write state no longer matches the wire.
	CleanupFdNoShutdown(fd int)

	// HasSession reports whether a session is bound to fd.
	HasSession(fd int) bool

	// ResizeRegistry resizes the fd registry; shrinking fails while a
	// session lives beyond the new size.
	ResizeRegistry(size int) liberr.Error

	// Read, Write and Ping replace the plain socket calls of the
	// upstream handlers, with identical errno conventions: blocked
	// operations return a negative count and unix.EAGAIN.
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)

	// Ping stages the single heartbeat byte. When the transport cannot
	// take it, the session remembers the pending heartbeat and the next
	// Write delivers it before any caller data.
	Ping(fd int) (int, error)

	// ErrStr describes the last failed operation, using the OS error
	// text whenever the failure came from the transport.
	ErrStr() string

	// HandshakeWithClient drives the handshake of an accepted command
	// connection.
	HandshakeWithClient(fd int, site Callsite) liberr.Error

	// HandshakeWithClusterAsServer drives the handshake of an accepted
	// cluster bus connection.
	HandshakeWithClusterAsServer(fd int, site Callsite) liberr.Error

	// HandshakeWithClusterAsClient drives the handshake of an outgoing
	// cluster bus connection. The non blocking connect is checked for a
	// pending socket error before the first step.
	HandshakeWithClusterAsClient(fd int, site Callsite) liberr.Error

	// HandshakeWithMaster drives the handshake of an outgoing
	// replication connection; masterHost is used as the SNI name.
	HandshakeWithMaster(fd int, masterHost string, site Callsite) liberr.Error

	// SyncNegotiate drives the handshake of fd synchronously, bounding
	// every blocked wait by timeout.
	SyncNegotiate(fd int, timeout time.Duration) liberr.Error

	// Renew hot swaps the server certificate. The displaced
	// configuration stays alive for in flight sessions; sessions still
	// on the generation displaced two rotations ago are force closed.
	Renew(certPEM, keyPEM, certFile, keyFile string) liberr.Error

	// WaitSlaveFinishRDB watches a slave link after the bulk transfer:
	// liveness bytes refresh the ack time, the completion byte triggers
	// the renegotiation, anything else is an error.
	WaitSlaveFinishRDB(fd int, hooks RdbSlaveHooks)

	// StartHandshakeWithSlaveAfterRDB rebuilds a server session on fd
	// and drives the renegotiation handshake.
	StartHandshakeWithSlaveAfterRDB(fd int, site Callsite) liberr.Error

	// NotifyMasterRdbLoaded sends the load completion byte to the
	// master once the socket accepts it, then rebuilds a client session
	// on fd and drives the renegotiation handshake.
	NotifyMasterRdbLoaded(fd int, masterHost string, site Callsite)

	// StartHandshakeWithMasterAfterRDBLoad rebuilds a client session on
	// fd and drives the renegotiation handshake.
	StartHandshakeWithMasterAfterRDBLoad(fd int, masterHost string, site Callsite) liberr.Error

	// DeleteReadHandlersForSlavesWaitingBgsave drops the read interest
	// of slave links about to receive a bulk transfer, so handshake
	// bytes cannot reach the command handler.
	DeleteReadHandlersForSlavesWaitingBgsave(fds ...int)

	// Stats returns the observability counters.
	Stats() Stats

	// HealthCheck reports whether the live certificate is inside its
	// validity window.
	HealthCheck(ctx context.Context) error
}

// New builds the TLS layer from its configuration.
//
// rea is the event loop the layer registers against; onForceClose is
// the upstream connection closer used on generation eviction; log is
// the logger injection point.
func New(cfg Config, rea reactor.Reactor, log liblog.FuncLog, onForceClose FuncForceClose) (SSL, liberr.Error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &ssl{
		cfg:    cfg,
		rea:    rea,
		log:    libatm.NewValue[liblog.FuncLog](),
		fcl:    onForceClose,
		reg:    make([]*session, cfg.RegistrySize()),
		rrList: list.New(),
		rrTask: reactor.NoTask,
	}

	if log != nil {
		o.log.Store(log)
	}

	if !cfg.Enable {
		return o, nil
	}

	var (
		err liberr.Error

		crt []byte
		key []byte
		dhp []byte
	)

	if crt, err = readFile(cfg.CertificateFile); err != nil {
		return nil, err
	}

	if key, err = readFile(cfg.PrivateKeyFile); err != nil {
		return nil, err
	}

	if cfg.DHParamsFile != "" {
		if dhp, err = readFile(cfg.DHParamsFile); err != nil {
			return nil, err
		}
	}

	if err = o.loadMaterial(string(crt), string(key), string(dhp), cfg.CertificateFile, cfg.PrivateKeyFile); err != nil {
		return nil, err
	}

	o.logger().Entry(loglvl.InfoLevel, "ssl layer enabled").FieldAdd("hostname", o.expected).FieldAdd("notAfter", o.notAfter).Log()

	return o, nil
}

func (o *ssl) loadMaterial(certPEM, keyPEM, dhPEM, certFile, keyFile string) liberr.Error {
	var (
		err liberr.Error
		srv *certificates.ServerConfig
	)

	if srv, err = certificates.BuildServer(certPEM, keyPEM, dhPEM, o.cfg.CipherPrefs); err != nil {
		return ErrorConfigBuild.Error(err)
	}

	cn, err := certinfoCN(certPEM)
	if err != nil {
		return err
	}

	nb, na, sn, err := certinfoValidity(certPEM)
	if err != nil {
		return err
	}

	cli, err2 := certificates.BuildClient(o.cfg.CipherPrefs, certPEM, o.cfg.RootCACertsPath, o.VerifyHost)
	if err2 != nil {
		return ErrorConfigBuild.Error(err2)
	}

	o.srvCur = srv
	o.srvCurAt = srv.CreatedAt()
	o.cli = cli
	o.expected = cn
	o.notBefore = nb
	o.notAfter = na
	o.serial = sn
	o.certPEM = certPEM
	o.keyPEM = keyPEM
	o.dhPEM = dhPEM
	o.certFile = certFile
	o.keyFile = keyFile

	return nil
}

func readFile(path string) ([]byte, liberr.Error) {
	if path == "" {
		return nil, ErrorParamEmpty.Error(nil)
	}

	if b, e := osReadFile(path); e != nil {
		return nil, ErrorConfigRead.ErrorParent(e)
	} else {
		return b, nil
	}
}

// eagain is the blocked sentinel shared by every shim.
var eagain = unix.EAGAIN
