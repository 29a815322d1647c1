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
	"github.com/codeboten/redis/reactor"
)

// The repeated reads scheduler re-invokes read handlers for sessions
// whose engine still holds buffered input. TLS records are larger than
// the kernel's readable edge: once a read drained the socket into the
// engine while a further record sits undelivered, the loop would never
// fire another read event for it. The scheduler runs as a zero delay
// task for as long as any session is queued, then retires itself.

// cachedAdd queues the session. A session already queued keeps its
// single membership.
func (o *ssl) cachedAdd(s *session) {
	if s.node != nil {
		return
	}

	s.node = o.rrList.PushBack(s)

	if o.rrTask == reactor.NoTask {
		o.rrTask = o.rea.ScheduleTask(0, o.cachedTick, nil)
	}

	if l := o.rrList.Len(); l > o.rrMax {
		o.rrMax = l
	}
}

// cachedRemove unlinks the session; removing a non member is a no-op.
func (o *ssl) cachedRemove(s *session) {
	if s == nil || s.node == nil {
		return
	}

	o.rrList.Remove(s.node)
	s.node = nil
}

func (o *ssl) cachedTick(_ reactor.TaskID, _ interface{}) int64 {
	if o.rrList.Len() < 1 {
		o.rrTask = reactor.NoTask
		return reactor.TaskStop
	}

	// the handlers invoked below may add or remove entries; iterate a
	// snapshot and let membership checks happen per entry
	var snap = make([]*session, 0, o.rrList.Len())

	for e := o.rrList.Front(); e != nil; e = e.Next() {
		if s, k := e.Value.(*session); k {
			snap = append(snap, s)
		}
	}

	for _, s := range snap {
		// sessions not interested in reads yet are retried next tick
		if !o.rea.Mask(s.fd).Has(reactor.Readable) {
			continue
		}

		// the callback data is re-read each iteration: a handler that
		// swapped it mid tick is observed by the entries after it
		cb := o.rea.Callback(s.fd, reactor.Readable)
		if cb == nil {
			continue
		}

		cb(s.fd, o.rea.CbData(s.fd, reactor.Readable), reactor.Readable)
		o.rrRuns++
	}

	if l := o.rrList.Len(); l > o.rrMax {
		o.rrMax = l
	}

	if o.rrList.Len() < 1 {
		o.rrTask = reactor.NoTask
		return reactor.TaskStop
	}

	return 0
}
