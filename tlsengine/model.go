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

package tlsengine

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/ssl/perfmode"
)

const readChunk = 16*1024 + 512

type engine struct {
	fd   int
	role Role
	log  liblog.FuncLog

	stg *stagedConn
	cnx *tls.Conn

	hsStart  bool
	hsDone   bool
	complete bool
	freed    bool
	sockEOF  bool

	hello atomic.Bool

	hsMu  sync.Mutex
	hsErr error

	lastErr error
	lastCls ErrClass
	lastOs  error
}

func newEngine(cfg Config) *engine {
	var (
		e = &engine{
			fd:   cfg.Fd,
			role: cfg.Role,
			log:  cfg.Log,
			stg:  newStagedConn(),
		}
		t = cfg.TLS.Clone()
	)

	// record sizing follows the performance mode: throughput tuned
	// sessions always emit full records
	t.DynamicRecordSizingDisabled = cfg.Mode == perfmode.HighThroughput

	if cfg.Role == RoleServer {
		prev := t.GetConfigForClient
		t.GetConfigForClient = func(hi *tls.ClientHelloInfo) (*tls.Config, error) {
			e.hello.Store(true)
			if prev != nil {
				return prev(hi)
			}
			return nil, nil
		}
		e.cnx = tls.Server(e.stg, t)
	} else {
		if cfg.ServerName != "" {
			t.ServerName = cfg.ServerName
		}
		e.cnx = tls.Client(e.stg, t)
	}

	if len(cfg.Preload) > 0 {
		e.stg.feed(cfg.Preload)
	}

	return e
}

func (e *engine) logger() liblog.Logger {
	if e.log == nil {
		return liblog.GetDefault()
	} else if l := e.log(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

func (e *engine) setIOErr(err error) {
	e.lastErr = err
	e.lastCls = ClassIO
	e.lastOs = err
}

func (e *engine) setTLSErr(err error) {
	e.lastErr = err
	e.lastCls = ClassTLS
}

// fillSocket pulls every readable byte off the socket into the staging
// buffer. It stops on EAGAIN and records EOF or transport errors.
func (e *engine) fillSocket() {
	var buf [readChunk]byte

	for {
		n, err := unix.Read(e.fd, buf[:])

		if n > 0 {
			e.stg.feed(buf[:n])
			continue
		}

		if err == unix.EINTR {
			continue
		}

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}

		if err != nil {
			e.setIOErr(err)
			e.stg.setEOF()
			return
		}

		// n == 0: orderly close
		e.sockEOF = true
		e.stg.setEOF()
		return
	}
}

// flushSocket pushes staged ciphertext to the socket as far as it
// accepts. It returns false when bytes remain queued.
func (e *engine) flushSocket() bool {
	p := e.stg.takeOut()

	for len(p) > 0 {
		n, err := unix.Write(e.fd, p)

		if n > 0 {
			p = p[n:]
			continue
		}

		if err == unix.EINTR {
			continue
		}

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			e.stg.pushBackOut(p)
			return false
		}

		if err != nil {
			e.setIOErr(err)
			return true
		}
	}

	return !e.stg.hasOut()
}

func (e *engine) hsError() error {
	e.hsMu.Lock()
	defer e.hsMu.Unlock()
	return e.hsErr
}

func (e *engine) startHandshake() {
	e.hsStart = true

	if e.role == RoleClient {
		e.hello.Store(true)
	}

	go func() {
		err := e.cnx.Handshake()

		e.hsMu.Lock()
		e.hsErr = err
		e.hsMu.Unlock()

		e.stg.finish()
	}()
}

func (e *engine) Negotiate() Result {
	if e.freed {
		return Failed
	}

	if e.complete {
		if e.flushSocket() {
			return Done
		}
		return WantWrite
	}

	if e.hsDone {
		// a previous step already failed
		return Failed
	}

	if !e.hsStart {
		e.startHandshake()
	}

	e.fillSocket()
	e.stg.waitStep()

	flushed := e.flushSocket()

	if e.stg.finished() {
		e.hsDone = true

		if err := e.hsError(); err != nil {
			if e.lastCls == ClassNone {
				e.setTLSErr(err)
			}
			e.logger().Entry(loglvl.DebugLevel, "handshake failed").ErrorAdd(true, err).Check(loglvl.NilLevel)
			return Failed
		}

		if !flushed {
			// completion is reported only once the last flight is on
			// the wire
			e.complete = true
			e.stg.setStep()
			return WantWrite
		}

		e.complete = true
		e.stg.setStep()
		return Done
	}

	if !flushed {
		return WantWrite
	}

	if e.sockEOF || e.lastCls == ClassIO {
		e.hsDone = true
		if e.lastErr == nil {
			e.setTLSErr(io.ErrUnexpectedEOF)
		}
		return Failed
	}

	return WantRead
}

func (e *engine) Recv(p []byte) (int, Result) {
	if e.freed || !e.complete {
		return -1, Failed
	}

	e.fillSocket()

	n, err := e.cnx.Read(p)

	if n > 0 {
		return n, Done
	}

	switch {
	case err == nil:
		return 0, WantRead
	case errors.Is(err, io.EOF):
		return 0, Closed
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if e.sockEOF {
				return 0, Closed
			}
			if e.lastCls == ClassIO {
				return -1, Failed
			}
			return -1, WantRead
		}

		e.setTLSErr(err)
		return -1, Failed
	}
}

func (e *engine) Send(p []byte) (int, Result) {
	if e.freed || !e.complete {
		return -1, Failed
	}

	if !e.flushSocket() {
		return -1, WantWrite
	}

	if e.lastCls == ClassIO {
		return -1, Failed
	}

	n, err := e.cnx.Write(p)

	if err != nil {
		e.setTLSErr(err)
		return -1, Failed
	}

	e.flushSocket()

	if e.lastCls == ClassIO {
		return -1, Failed
	}

	return n, Done
}

func (e *engine) Flush() Result {
	if e.freed {
		return Failed
	}

	if e.flushSocket() {
		return Done
	}

	return WantWrite
}

func (e *engine) Pending() bool {
	if e.freed {
		return false
	}

	return e.stg.pendingIn()
}

func (e *engine) ClientHelloSeen() bool {
	return e.hello.Load()
}

func (e *engine) CipherName() string {
	if !e.complete {
		return ""
	}

	return tls.CipherSuiteName(e.cnx.ConnectionState().CipherSuite)
}

func (e *engine) Shutdown() {
	if e.freed || !e.complete {
		return
	}

	_ = e.cnx.CloseWrite()
	e.flushSocket()
}

func (e *engine) DetachPending() []byte {
	return e.stg.takePending()
}

func (e *engine) Wipe() {
	e.stg.wipe()
}

func (e *engine) Free() {
	e.Wipe()
	e.freed = true
}

func (e *engine) ErrClass() ErrClass {
	return e.lastCls
}

func (e *engine) ErrString() string {
	if e.lastErr == nil {
		return ""
	}

	return e.lastErr.Error()
}

func (e *engine) Errno() error {
	return e.lastOs
}
