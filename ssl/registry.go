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
	"fmt"

	liberr "github.com/nabbar/golib/errors"
)

// The registry is a dense slice keyed by fd. File descriptors are small
// integers allocated densely by the OS, so direct indexing stays
// compact. Bounds or double-bind violations mean the owner of the fd
// lifecycle has lost track of a connection; continuing would corrupt
// another session's state, so they are fatal.

func (o *ssl) attach(fd int, s *session) {
	if fd < 0 || fd >= len(o.reg) {
		panic(fmt.Sprintf("ssl: fd %d outside registry of size %d", fd, len(o.reg)))
	}

	if o.reg[fd] != nil {
		panic(fmt.Sprintf("ssl: fd %d already bound to a session", fd))
	}

	o.reg[fd] = s
}

func (o *ssl) detach(fd int) {
	if fd >= 0 && fd < len(o.reg) {
		o.reg[fd] = nil
	}
}

func (o *ssl) get(fd int) *session {
	if fd < 0 || fd >= len(o.reg) {
		return nil
	}

	return o.reg[fd]
}

// HasSession reports whether a session is bound to fd.
func (o *ssl) HasSession(fd int) bool {
	return o.get(fd) != nil
}

// ResizeRegistry resizes the fd registry. Shrinking fails while any fd
// beyond the new size still holds a live session, so lowering the
// client limit can never silently drop connections.
func (o *ssl) ResizeRegistry(size int) liberr.Error {
	if size < 1 {
		return ErrorParamEmpty.Error(nil)
	}

	for fd := size; fd < len(o.reg); fd++ {
		if o.reg[fd] != nil {
			return ErrorRegistryShrink.Error(nil)
		}
	}

	reg := make([]*session, size)
	copy(reg, o.reg)
	o.reg = reg

	return nil
}
