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
	"time"

	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/tlsengine"
)

type stepStatus uint8

const (
	stepDone stepStatus = iota
	stepRetry
	stepFailed
)

// hsEvent is the readiness callback installed while a handshake is in
// flight. The callback data is the call site record.
func (o *ssl) hsEvent(fd int, data interface{}, _ reactor.Mask) {
	if site, k := data.(*Callsite); k {
		o.stepHandshake(fd, site)
	}
}

// rearm switches the in flight handshake interest to the blocked
// direction: drop the opposite interest, then register only when
// nothing is left registered on the fd.
func (o *ssl) rearm(fd int, dir reactor.Mask, site *Callsite) {
	if dir == reactor.Readable {
		o.rea.Unregister(fd, reactor.Writable)
	} else {
		o.rea.Unregister(fd, reactor.Readable)
	}

	if o.rea.Mask(fd) == reactor.None {
		_ = o.rea.Register(fd, dir, o.hsEvent, site)
	}
}

func (o *ssl) stepHandshake(fd int, site *Callsite) stepStatus {
	var s = o.get(fd)

	if s == nil {
		return stepFailed
	}

	switch s.eng.Negotiate() {
	case tlsengine.Done:
		o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

		if site.PostMask != reactor.None && site.PostHandler != nil {
			_ = o.rea.Register(fd, site.PostMask, site.PostHandler, site.PostData)
		}

		o.logger().Entry(loglvl.InfoLevel, "ssl handshake complete").
			FieldAdd("site", site.Name).
			FieldAdd("fd", fd).
			FieldAdd("cipher", s.eng.CipherName()).
			Log()

		if site.OnDone != nil {
			site.OnDone(fd)
		}

		return stepDone

	case tlsengine.WantRead:
		o.rearm(fd, reactor.Readable, site)
		return stepRetry

	case tlsengine.WantWrite:
		o.rearm(fd, reactor.Writable, site)
		return stepRetry

	default:
		o.rea.Unregister(fd, reactor.Readable|reactor.Writable)
		o.recordErr(s)

		o.logger().Entry(loglvl.WarnLevel, "ssl handshake failed").
			FieldAdd("site", site.Name).
			FieldAdd("fd", fd).
			FieldAdd("reason", s.eng.ErrString()).
			Log()

		if site.OnFailed != nil {
			site.OnFailed(fd)
		}

		return stepFailed
	}
}

// startHandshake ensures a session exists with the wanted role, then
// runs the first step inline. When the layer is disabled the call site
// completes immediately: the post handler is installed and OnDone runs.
func (o *ssl) startHandshake(fd int, role tlsengine.Role, flags sessionFlag, serverName string, preload []byte, site Callsite) liberr.Error {
	if !o.cfg.Enable {
		if site.PostMask != reactor.None && site.PostHandler != nil {
			_ = o.rea.Register(fd, site.PostMask, site.PostHandler, site.PostData)
		}

		if site.OnDone != nil {
			site.OnDone(fd)
		}

		return nil
	}

	if o.get(fd) == nil {
		if _, err := o.newSession(fd, role, flags, serverName, preload); err != nil {
			if site.OnFailed != nil {
				site.OnFailed(fd)
			}
			return err
		}
	}

	if o.stepHandshake(fd, &site) == stepFailed {
		return ErrorHandshakeFailed.Error(nil)
	}

	return nil
}

func (o *ssl) HandshakeWithClient(fd int, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "client")
	return o.startHandshake(fd, tlsengine.RoleServer, flagClientOrigin, "", nil, site)
}

func (o *ssl) HandshakeWithClusterAsServer(fd int, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "cluster-accept")
	return o.startHandshake(fd, tlsengine.RoleServer, 0, "", nil, site)
}

func (o *ssl) HandshakeWithClusterAsClient(fd int, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "cluster-connect")

	// the connect ran non blocking: surface any pending socket error
	// before spending a handshake on a dead link
	if o.cfg.Enable {
		if v, e := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); e != nil || v != 0 {
			o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

			if v != 0 {
				o.recordOsErr(unix.Errno(v))
			}

			if site.OnFailed != nil {
				site.OnFailed(fd)
			}

			return ErrorSocketError.Error(nil)
		}
	}

	return o.startHandshake(fd, tlsengine.RoleClient, 0, "", nil, site)
}

func (o *ssl) HandshakeWithMaster(fd int, masterHost string, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "master")
	return o.startHandshake(fd, tlsengine.RoleClient, 0, masterHost, nil, site)
}

func siteName(given, def string) string {
	if given != "" {
		return given
	}

	return def
}

// SyncNegotiate drives the handshake of fd to completion, sleeping on
// the blocked direction between steps. Every wait round is bounded by
// timeout; a round that expires fails the handshake.
func (o *ssl) SyncNegotiate(fd int, timeout time.Duration) liberr.Error {
	if !o.cfg.Enable {
		return nil
	}

	var s = o.get(fd)

	if s == nil {
		return ErrorSessionMissing.Error(nil)
	}

	if timeout <= 0 {
		if d := o.cfg.SyncTimeout.Time(); d > 0 {
			timeout = d
		} else {
			timeout = 5 * time.Second
		}
	}

	for {
		var dir reactor.Mask

		switch s.eng.Negotiate() {
		case tlsengine.Done:
			return nil
		case tlsengine.WantRead:
			dir = reactor.Readable
		case tlsengine.WantWrite:
			dir = reactor.Writable
		default:
			o.recordErr(s)
			return ErrorHandshakeFailed.Error(nil)
		}

		if m, e := o.rea.Wait(fd, dir, timeout); e != nil {
			o.recordOsErr(e)
			return ErrorHandshakeFailed.ErrorParent(e)
		} else if m == reactor.None {
			return ErrorHandshakeTimeout.Error(nil)
		}
	}
}
