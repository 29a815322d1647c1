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
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"

	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/tlsengine"
)

// A bulk snapshot transfer is produced by a forked child writing
// ciphertext through an inherited engine. When the child exits, the
// master's write state no longer matches the wire, while its read side
// stayed valid (the child never read) and the replica's session is
// untouched. The replica therefore writes through its old session — a
// liveness byte stream and one completion byte — which the master reads
// through its intact read side; then both sides tear their sessions
// down without close alerts and run a full handshake again on the same
// TCP connection.

const (
	rdbAckByte  = '\n'
	rdbDoneByte = '+'
)

// WaitSlaveFinishRDB installs the post transfer read handler on a slave
// link: liveness bytes refresh the ack time, the completion byte starts
// the renegotiation, anything else frees the slave.
func (o *ssl) WaitSlaveFinishRDB(fd int, hooks RdbSlaveHooks) {
	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)
	_ = o.rea.Register(fd, reactor.Readable, o.rdbSlaveEvent, &hooks)
}

func (o *ssl) rdbSlaveEvent(fd int, data interface{}, _ reactor.Mask) {
	var (
		b     [1]byte
		hooks, k = data.(*RdbSlaveHooks)
	)

	if !k {
		return
	}

	n, e := o.Read(fd, b[:])

	if n < 0 && e == eagain {
		return
	}

	if n != 1 {
		o.rdbSlaveError(fd, hooks)
		return
	}

	switch b[0] {
	case rdbAckByte:
		if hooks.OnAck != nil {
			hooks.OnAck(fd)
		}

	case rdbDoneByte:
		o.logger().Entry(loglvl.InfoLevel, "slave finished loading bulk transfer, renegotiating").
			FieldAdd("fd", fd).
			Log()

		// ciphertext already staged behind the completion byte belongs
		// to the slave's new handshake
		var leftover []byte
		if s := o.get(fd); s != nil {
			leftover = s.eng.DetachPending()
		}

		// the write state is poisoned: no close alert may be sent
		o.CleanupFdNoShutdown(fd)

		site := hooks.Site
		site.Name = siteName(site.Name, "slave-post-rdb")
		o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

		if err := o.startHandshake(fd, tlsengine.RoleServer, 0, "", leftover, site); err != nil {
			o.logger().Entry(loglvl.WarnLevel, "post transfer handshake failed to start").
				FieldAdd("fd", fd).
				ErrorAdd(true, err).
				Log()
		}

	default:
		o.rdbSlaveError(fd, hooks)
	}
}

func (o *ssl) rdbSlaveError(fd int, hooks *RdbSlaveHooks) {
	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

	if hooks.OnError != nil {
		hooks.OnError(fd)
	}
}

// StartHandshakeWithSlaveAfterRDB rebuilds a server role session on the
// slave fd and drives the renegotiation handshake.
func (o *ssl) StartHandshakeWithSlaveAfterRDB(fd int, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "slave-post-rdb")

	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

	return o.startHandshake(fd, tlsengine.RoleServer, 0, "", nil, site)
}

type rdbMasterNotify struct {
	host string
	site Callsite
}

// NotifyMasterRdbLoaded arms a writable handler that sends the load
// completion byte through the current session, then hands the fd to the
// renegotiation handshake.
func (o *ssl) NotifyMasterRdbLoaded(fd int, masterHost string, site Callsite) {
	if !o.cfg.Enable {
		o.StartHandshakeDisabled(fd, site)
		return
	}

	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)
	_ = o.rea.Register(fd, reactor.Writable, o.rdbMasterEvent, &rdbMasterNotify{host: masterHost, site: site})
}

// StartHandshakeDisabled completes a call site immediately when the
// layer is off.
func (o *ssl) StartHandshakeDisabled(fd int, site Callsite) {
	if site.PostMask != reactor.None && site.PostHandler != nil {
		_ = o.rea.Register(fd, site.PostMask, site.PostHandler, site.PostData)
	}

	if site.OnDone != nil {
		site.OnDone(fd)
	}
}

func (o *ssl) rdbMasterEvent(fd int, data interface{}, _ reactor.Mask) {
	var n, k = data.(*rdbMasterNotify)

	if !k {
		return
	}

	// the write side of the replica session is still valid: only the
	// master's write state was consumed by the forked child
	w, e := o.Write(fd, []byte{rdbDoneByte})

	if w < 0 && e == eagain {
		return
	}

	if e != nil {
		o.logger().Entry(loglvl.WarnLevel, "cannot notify master of completed load").
			FieldAdd("fd", fd).
			ErrorAdd(true, e).
			Log()
		o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

		if n.site.OnFailed != nil {
			n.site.OnFailed(fd)
		}

		return
	}

	if s := o.get(fd); s != nil {
		s.set(flagLoadNotified)
	}

	o.logger().Entry(loglvl.InfoLevel, "notified master of completed load, renegotiating").
		FieldAdd("fd", fd).
		Log()

	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

	var leftover []byte
	if s := o.get(fd); s != nil {
		leftover = s.eng.DetachPending()
	}

	o.CleanupFdNoShutdown(fd)

	site := n.site
	site.Name = siteName(site.Name, "master-post-rdb")

	if err := o.startHandshake(fd, tlsengine.RoleClient, 0, n.host, leftover, site); err != nil {
		o.logger().Entry(loglvl.WarnLevel, "post load handshake failed to start").
			FieldAdd("fd", fd).
			ErrorAdd(true, err).
			Log()
	}
}

// StartHandshakeWithMasterAfterRDBLoad rebuilds a client role session
// on the master fd and drives the renegotiation handshake.
func (o *ssl) StartHandshakeWithMasterAfterRDBLoad(fd int, masterHost string, site Callsite) liberr.Error {
	site.Name = siteName(site.Name, "master-post-rdb")

	o.rea.Unregister(fd, reactor.Readable|reactor.Writable)

	return o.startHandshake(fd, tlsengine.RoleClient, 0, masterHost, nil, site)
}

// DeleteReadHandlersForSlavesWaitingBgsave removes the read interest of
// slave links queued behind a background save. If the slave starts the
// renegotiation first, a still installed command handler would be fed
// handshake bytes.
func (o *ssl) DeleteReadHandlersForSlavesWaitingBgsave(fds ...int) {
	for _, fd := range fds {
		o.rea.Unregister(fd, reactor.Readable)
	}
}
