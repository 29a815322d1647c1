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

package ssl

import (
	"container/list"
	"time"

	liberr "github.com/nabbar/golib/errors"

	"github.com/codeboten/redis/tlsengine"
)

type sessionFlag uint8

const (
	// flagClientOrigin marks a session created for command traffic; only
	// those are counted into the certificate generations.
	flagClientOrigin sessionFlag = 1 << iota

	// flagOldGeneration marks a session whose certificate generation has
	// been rotated away.
	flagOldGeneration

	// flagPingInProgress marks a session whose heartbeat byte is staged
	// but not yet accepted by the transport; no other plaintext may be
	// written before it.
	flagPingInProgress

	// flagLoadNotified marks a replication session whose bulk load
	// completion byte has been accepted by the transport.
	flagLoadNotified
)

// session is the per connection TLS state.
type session struct {
	fd      int
	eng     tlsengine.Engine
	flags   sessionFlag
	node    *list.Element // membership in the repeated reads list
	created time.Time
}

func (s *session) has(f sessionFlag) bool {
	return s.flags&f != 0
}

func (s *session) set(f sessionFlag) {
	s.flags |= f
}

func (s *session) clear(f sessionFlag) {
	s.flags &^= f
}

// newSession builds the engine for fd and binds the session into the
// registry.
func (o *ssl) newSession(fd int, role tlsengine.Role, flags sessionFlag, serverName string, preload []byte) (*session, liberr.Error) {
	var (
		cnf tlsengine.Config
		err liberr.Error
	)

	cnf = tlsengine.Config{
		Role:       role,
		Fd:         fd,
		Mode:       o.cfg.PerformanceMode,
		ServerName: serverName,
		Preload:    preload,
		Log:        o.log.Load(),
	}

	if role == tlsengine.RoleServer {
		cnf.TLS = o.srvCur.TlsConfig()
	} else {
		cnf.TLS = o.cli.TlsConfig(serverName)
	}

	s := &session{
		fd:      fd,
		flags:   flags,
		created: time.Now(),
	}

	if s.eng, err = tlsengine.New(cnf); err != nil {
		return nil, ErrorEngineCreate.Error(err)
	}

	o.attach(fd, s)

	if s.has(flagClientOrigin) {
		o.cntCur++
	}

	return s, nil
}

// freeSession tears the session down. When shutdown is true and the
// handshake reached the peer hello, the engine is asked for a close
// alert, best effort; the engine sends one only once its handshake has
// completed. The RDB handoff path passes shutdown false: its write state
// no longer matches the wire and an alert would inject garbage.
func (o *ssl) freeSession(s *session, shutdown bool) {
	if s == nil {
		return
	}

	if shutdown && s.eng.ClientHelloSeen() {
		s.eng.Shutdown()
	}

	s.eng.Wipe()
	s.eng.Free()

	o.cachedRemove(s)
	o.detach(s.fd)

	if s.has(flagClientOrigin) {
		if s.has(flagOldGeneration) {
			o.cntPrev--
		} else {
			o.cntCur--
		}
	}
}
