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
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

const recordHeaderLen = 5

// errWouldBlock is returned by the staged connection when no input is
// available in stepping mode. It is a temporary timeout error so the
// record layer treats it as retryable instead of poisoning the stream.
type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "operation would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

var errWouldBlock net.Error = wouldBlockError{}

type stageAddr struct{}

func (stageAddr) Network() string { return "fd" }
func (stageAddr) String() string  { return "fd" }

// stagedConn is the virtual transport handed to the record layer.
//
// Incoming ciphertext is fed by the engine into the in buffer and served
// to the record layer one TLS record at a time, so that a fully consumed
// record leaves any further buffered ciphertext observable from outside.
// Outgoing ciphertext accumulates in the out buffer; the engine flushes
// it to the socket as far as the socket accepts.
//
// Read has two modes. While a handshake goroutine owns the reads, an
// empty in buffer parks the reader on the condition variable until the
// engine feeds more bytes (step mode false). Once the engine switches to
// stepping (step mode true), an empty in buffer returns errWouldBlock
// instead.
type stagedConn struct {
	mu   sync.Mutex
	cnd  *sync.Cond
	in   bytes.Buffer
	out  bytes.Buffer
	rec  int  // bytes left to serve of the current TLS record
	step bool // true: would-block reads; false: parking reads
	park bool // reader currently parked
	done bool // handshake goroutine finished
	eof  bool // transport closed; reads drain then return EOF
	dead bool // wiped; reads return EOF, writes are dropped
}

func newStagedConn() *stagedConn {
	c := &stagedConn{}
	c.cnd = sync.NewCond(&c.mu)
	return c
}

// serveLocked copies at most one record worth of buffered ciphertext
// into p. Caller holds mu.
func (c *stagedConn) serveLocked(p []byte) int {
	if c.in.Len() < 1 {
		return 0
	}

	if c.rec == 0 {
		if c.in.Len() < recordHeaderLen {
			// partial header of the next record: serve it as is, the
			// remainder of the record is not buffered anyway
			return copyOut(&c.in, p, c.in.Len())
		}

		h := c.in.Bytes()
		c.rec = recordHeaderLen + int(h[3])<<8 + int(h[4])
	}

	n := copyOut(&c.in, p, c.rec)
	c.rec -= n

	return n
}

func copyOut(b *bytes.Buffer, p []byte, max int) int {
	if max > len(p) {
		max = len(p)
	}

	n, _ := b.Read(p[:max])
	return n
}

func (c *stagedConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.dead {
			return 0, io.EOF
		}

		if n := c.serveLocked(p); n > 0 {
			return n, nil
		}

		if c.eof {
			return 0, io.EOF
		}

		if c.step {
			return 0, errWouldBlock
		}

		c.park = true
		c.cnd.Broadcast()
		c.cnd.Wait()
		c.park = false
	}
}

func (c *stagedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return len(p), nil
	}

	return c.out.Write(p)
}

// feed appends ciphertext pulled off the socket and wakes a parked
// reader.
func (c *stagedConn) feed(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.in.Write(p)
	c.cnd.Broadcast()
}

// waitStep blocks until the handshake goroutine either finished or
// parked again on an empty in buffer.
func (c *stagedConn) waitStep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.done || c.dead {
			return
		}

		if c.park && c.in.Len() < 1 {
			return
		}

		c.cnd.Wait()
	}
}

func (c *stagedConn) setEOF() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eof = true
	c.cnd.Broadcast()
}

func (c *stagedConn) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.done
}

func (c *stagedConn) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done = true
	c.cnd.Broadcast()
}

func (c *stagedConn) setStep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = true
	c.cnd.Broadcast()
}

func (c *stagedConn) pendingIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.in.Len() > 0
}

func (c *stagedConn) takeOut() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.out.Len() < 1 {
		return nil
	}

	p := make([]byte, c.out.Len())
	_, _ = c.out.Read(p)

	return p
}

func (c *stagedConn) pushBackOut(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(p) < 1 {
		return
	}

	// unsent tail goes back in front of anything written meanwhile
	rest := c.out.Bytes()
	old := make([]byte, len(rest))
	copy(old, rest)

	c.out.Reset()
	_, _ = c.out.Write(p)
	_, _ = c.out.Write(old)
}

func (c *stagedConn) hasOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.out.Len() > 0
}

// takePending detaches the buffered, not yet consumed ciphertext. Used
// when a fresh session is rebuilt on the same fd: bytes already pulled
// off the socket belong to the next session's handshake.
func (c *stagedConn) takePending() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.in.Len() < 1 {
		return nil
	}

	p := make([]byte, c.in.Len())
	_, _ = c.in.Read(p)
	c.rec = 0

	return p
}

func (c *stagedConn) wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dead = true
	c.in.Reset()
	c.out.Reset()
	c.rec = 0
	c.cnd.Broadcast()
}

func (c *stagedConn) Close() error                       { return nil }
func (c *stagedConn) LocalAddr() net.Addr                { return stageAddr{} }
func (c *stagedConn) RemoteAddr() net.Addr               { return stageAddr{} }
func (c *stagedConn) SetDeadline(t time.Time) error      { return nil }
func (c *stagedConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *stagedConn) SetWriteDeadline(t time.Time) error { return nil }
