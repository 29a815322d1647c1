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

// Package tlsengine drives one TLS session over a non blocking file
// descriptor in poll style steps.
//
// The engine never blocks the calling thread and never registers any
// event interest itself: every operation runs as far as the socket
// allows and reports which direction it is blocked on. The caller owns
// the event loop, rearms interests from the reported direction and
// calls back in when the socket is ready again.
//
// Ciphertext is staged through internal buffers on both directions, and
// incoming bytes are handed to the record layer one TLS record at a
// time. When a whole record has been decrypted while further ciphertext
// is already buffered, the socket will not signal readable again for it;
// Pending reports that state so the caller can synthesize continuation
// reads.
package tlsengine

import (
	"crypto/tls"

	liblog "github.com/nabbar/golib/logger"
	liberr "github.com/nabbar/golib/errors"

	"github.com/codeboten/redis/ssl/perfmode"
)

// Role selects the handshake side of an engine.
type Role uint8

const (
	// RoleServer accepts a handshake.
	RoleServer Role = iota

	// RoleClient initiates a handshake.
	RoleClient
)

// Result classifies the outcome of one engine operation.
type Result uint8

const (
	// Done means the operation completed.
	Done Result = iota

	// WantRead means the operation is blocked until the socket is
	// readable again.
	WantRead

	// WantWrite means the operation is blocked until the socket is
	// writable again.
	WantWrite

	// Closed means the peer closed the transport.
	Closed

	// Failed means the operation failed; ErrClass and ErrString carry
	// the detail.
	Failed
)

// ErrClass classifies the last engine error.
type ErrClass uint8

const (
	// ClassNone means no error is recorded.
	ClassNone ErrClass = iota

	// ClassIO means the error came from the transport; the underlying
	// OS errno is authoritative.
	ClassIO

	// ClassTLS means the error came from the record or handshake layer.
	ClassTLS
)

// Config carries the construction parameters of an engine.
type Config struct {
	// Role is the handshake side.
	Role Role

	// TLS is the engine configuration rendered by the certificates
	// package. It is cloned before use.
	TLS *tls.Config

	// Fd is the connected, non blocking file descriptor. The engine
	// never closes it.
	Fd int

	// Mode tunes record sizing, see perfmode.
	Mode perfmode.PerfMode

	// ServerName optionally overrides the SNI name on client engines.
	ServerName string

	// Preload is ciphertext already pulled off the socket by a previous
	// engine on the same fd; it is consumed before any socket read.
	Preload []byte

	// Log is the logger injection point.
	Log liblog.FuncLog
}

// Engine is one TLS session over a non blocking file descriptor.
//
// All methods must be called from the thread owning the connection.
type Engine interface {
	// Negotiate runs the handshake as far as the socket allows.
	// It returns Done once the handshake is complete and every
	// handshake byte has reached the socket, WantRead or WantWrite
	// while in progress, and Failed on a handshake error.
	Negotiate() Result

	// Recv decrypts application data into p. On Done the returned count
	// is at least 1. WantRead means no complete record is available.
	Recv(p []byte) (int, Result)

	// Send encrypts and stages p, then flushes as much ciphertext as
	// the socket accepts. WantWrite means previously staged ciphertext
	// is still queued and p was not consumed; the caller retries later
	// with the same bytes. On Done the whole of p is accepted even if
	// part of its ciphertext is still queued.
	Send(p []byte) (int, Result)

	// Flush pushes queued ciphertext to the socket. It returns Done
	// when the queue is empty, WantWrite otherwise.
	Flush() Result

	// Pending reports whether the engine holds buffered input that the
	// socket will not signal again: ciphertext already pulled off the
	// socket but not yet delivered as plaintext. Plaintext the record
	// layer already decrypted but Recv has not yet returned is not
	// reported.
	Pending() bool

	// ClientHelloSeen reports whether the handshake reached the point
	// where a shutdown alert is meaningful to the peer.
	ClientHelloSeen() bool

	// CipherName returns the negotiated cipher suite name, or an empty
	// string before the handshake completes.
	CipherName() string

	// Shutdown sends a close alert, best effort: the alert is staged
	// and flushed once without waiting for the socket. Before the
	// handshake completes it sends nothing.
	Shutdown()

	// DetachPending removes and returns the buffered ciphertext not yet
	// consumed by the record layer, for hand off to a replacement
	// engine on the same fd.
	DetachPending() []byte

	// Wipe drops every buffered byte and unblocks any handshake in
	// flight. The engine is unusable afterwards.
	Wipe()

	// Free releases the engine. It implies Wipe.
	Free()

	// ErrClass classifies the last Failed result.
	ErrClass() ErrClass

	// ErrString describes the last Failed result.
	ErrString() string

	// Errno returns the OS errno of the last transport error, or zero.
	Errno() error
}

// New builds an engine bound to cfg.Fd.
func New(cfg Config) (Engine, liberr.Error) {
	if cfg.TLS == nil || cfg.Fd < 0 {
		return nil, ErrorInvalidParams.Error(nil)
	}

	return newEngine(cfg), nil
}
