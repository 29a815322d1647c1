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

package poll

import (
	"context"
	"sort"
	"time"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/reactor"
)

type slot struct {
	cb   reactor.FuncEvent
	data interface{}
}

type fdEntry struct {
	rd *slot
	wr *slot
}

type task struct {
	id   reactor.TaskID
	when time.Time
	cb   reactor.FuncTask
	data interface{}
}

type loop struct {
	log liblog.FuncLog
	fds map[int]*fdEntry
	tsk map[reactor.TaskID]*task
	nxt reactor.TaskID
}

func (o *loop) logger() liblog.Logger {
	if o.log == nil {
		return liblog.GetDefault()
	} else if l := o.log(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

func (o *loop) entry(fd int) *fdEntry {
	if e, k := o.fds[fd]; k {
		return e
	}

	e := &fdEntry{}
	o.fds[fd] = e
	return e
}

func (o *loop) Register(fd int, mask reactor.Mask, cb reactor.FuncEvent, data interface{}) error {
	if fd < 0 || cb == nil {
		return ErrorInvalidParams.Error(nil)
	}

	e := o.entry(fd)

	if mask.Has(reactor.Readable) {
		e.rd = &slot{cb: cb, data: data}
	}

	if mask.Has(reactor.Writable) {
		e.wr = &slot{cb: cb, data: data}
	}

	return nil
}

func (o *loop) Unregister(fd int, mask reactor.Mask) {
	e, k := o.fds[fd]
	if !k {
		return
	}

	if mask.Has(reactor.Readable) {
		e.rd = nil
	}

	if mask.Has(reactor.Writable) {
		e.wr = nil
	}

	if e.rd == nil && e.wr == nil {
		delete(o.fds, fd)
	}
}

func (o *loop) Mask(fd int) reactor.Mask {
	var m reactor.Mask

	if e, k := o.fds[fd]; k {
		if e.rd != nil {
			m |= reactor.Readable
		}
		if e.wr != nil {
			m |= reactor.Writable
		}
	}

	return m
}

func (o *loop) slot(fd int, mask reactor.Mask) *slot {
	e, k := o.fds[fd]
	if !k {
		return nil
	}

	switch mask {
	case reactor.Readable:
		return e.rd
	case reactor.Writable:
		return e.wr
	default:
		return nil
	}
}

func (o *loop) Callback(fd int, mask reactor.Mask) reactor.FuncEvent {
	if s := o.slot(fd, mask); s != nil {
		return s.cb
	}

	return nil
}

func (o *loop) CbData(fd int, mask reactor.Mask) interface{} {
	if s := o.slot(fd, mask); s != nil {
		return s.data
	}

	return nil
}

func (o *loop) Wait(fd int, mask reactor.Mask, timeout time.Duration) (reactor.Mask, error) {
	var ev int16

	if mask.Has(reactor.Readable) {
		ev |= unix.POLLIN
	}

	if mask.Has(reactor.Writable) {
		ev |= unix.POLLOUT
	}

	p := []unix.PollFd{{Fd: int32(fd), Events: ev}}

	for {
		n, e := unix.Poll(p, int(timeout.Milliseconds()))

		if e == unix.EINTR {
			continue
		} else if e != nil {
			return reactor.None, e
		} else if n < 1 {
			return reactor.None, nil
		}

		break
	}

	var m reactor.Mask

	if p[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		m |= reactor.Readable
	}

	if p[0].Revents&(unix.POLLOUT|unix.POLLERR) != 0 {
		m |= reactor.Writable
	}

	return m, nil
}

func (o *loop) ScheduleTask(delayMs int64, cb reactor.FuncTask, data interface{}) reactor.TaskID {
	if cb == nil {
		return reactor.NoTask
	}

	id := o.nxt
	o.nxt++

	o.tsk[id] = &task{
		id:   id,
		when: time.Now().Add(time.Duration(delayMs) * time.Millisecond),
		cb:   cb,
		data: data,
	}

	return id
}

func (o *loop) CancelTask(id reactor.TaskID) {
	delete(o.tsk, id)
}

func (o *loop) nearestTask() time.Duration {
	var d = time.Duration(-1)

	for _, t := range o.tsk {
		w := time.Until(t.when)
		if w < 0 {
			w = 0
		}
		if d < 0 || w < d {
			d = w
		}
	}

	return d
}

func (o *loop) pollSet() []unix.PollFd {
	var p = make([]unix.PollFd, 0, len(o.fds))

	for fd, e := range o.fds {
		var ev int16

		if e.rd != nil {
			ev |= unix.POLLIN
		}

		if e.wr != nil {
			ev |= unix.POLLOUT
		}

		if ev != 0 {
			p = append(p, unix.PollFd{Fd: int32(fd), Events: ev})
		}
	}

	return p
}

func (o *loop) dispatch(p []unix.PollFd) {
	for i := range p {
		var (
			fd = int(p[i].Fd)
			rv = p[i].Revents
		)

		if rv == 0 {
			continue
		}

		// re-check the slots before each call: a callback may have
		// unregistered this fd or replaced its handlers
		if rv&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			if s := o.slot(fd, reactor.Readable); s != nil {
				s.cb(fd, s.data, reactor.Readable)
			}
		}

		if rv&(unix.POLLOUT|unix.POLLERR) != 0 {
			if s := o.slot(fd, reactor.Writable); s != nil {
				s.cb(fd, s.data, reactor.Writable)
			}
		}
	}
}

func (o *loop) runTasks() {
	var (
		now = time.Now()
		due = make([]*task, 0)
	)

	for _, t := range o.tsk {
		if !t.when.After(now) {
			due = append(due, t)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].id < due[j].id
	})

	for _, t := range due {
		// the task may have been cancelled by an earlier callback
		if _, k := o.tsk[t.id]; !k {
			continue
		}

		if next := t.cb(t.id, t.data); next == reactor.TaskStop {
			delete(o.tsk, t.id)
		} else {
			t.when = time.Now().Add(time.Duration(next) * time.Millisecond)
		}
	}
}

func (o *loop) Once(timeout time.Duration) error {
	var p = o.pollSet()

	if w := o.nearestTask(); w >= 0 && w < timeout {
		timeout = w
	}

	if len(p) > 0 {
		n, e := unix.Poll(p, int(timeout.Milliseconds()))

		if e != nil && e != unix.EINTR {
			o.logger().Entry(loglvl.ErrorLevel, "polling event loop").ErrorAdd(true, e).Check(loglvl.NilLevel)
			return e
		}

		if n > 0 {
			o.dispatch(p)
		}
	} else if timeout > 0 {
		time.Sleep(timeout)
	}

	o.runTasks()

	return nil
}

func (o *loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if e := o.Once(10 * time.Millisecond); e != nil {
				return e
			}
		}
	}
}
