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

// Package reactor defines the event loop contract consumed by the TLS
// session layer.
//
// The loop itself belongs to the server core: one thread owns every
// socket and runs fd readiness callbacks and timed tasks to completion.
// This package only fixes the surface the TLS layer needs — interest
// registration per direction, introspection of the installed callbacks,
// a bounded synchronous wait, and periodic tasks. The poll subpackage
// carries a minimal implementation for integration testing.
package reactor

import "time"

// Mask is a set of fd readiness directions.
type Mask uint8

const (
	// None is the empty interest set.
	None Mask = 0

	// Readable selects read readiness.
	Readable Mask = 1 << iota

	// Writable selects write readiness.
	Writable
)

// Has returns true if every direction of m is contained in v.
func (v Mask) Has(m Mask) bool {
	return v&m == m
}

// FuncEvent is an fd readiness callback. It runs to completion on the
// loop thread.
type FuncEvent func(fd int, data interface{}, mask Mask)

// TaskID identifies a scheduled task.
type TaskID int64

// NoTask is the nil TaskID.
const NoTask TaskID = -1

// TaskStop is returned by a FuncTask to remove the task from the loop.
const TaskStop int64 = -1

// FuncTask is a timed task callback. The returned value is the delay in
// milliseconds before the next run, or TaskStop to end the task.
type FuncTask func(id TaskID, data interface{}) int64

// Reactor is the event loop surface consumed by the TLS session layer.
type Reactor interface {
	// Register adds an interest on fd for every direction in mask,
	// installing cb and data on those directions.
	Register(fd int, mask Mask, cb FuncEvent, data interface{}) error

	// Unregister removes the interest on fd for every direction in mask.
	Unregister(fd int, mask Mask)

	// Mask returns the currently registered interest set of fd.
	Mask(fd int) Mask

	// Callback returns the callback installed on fd for the given single
	// direction, or nil.
	Callback(fd int, mask Mask) FuncEvent

	// CbData returns the callback data installed on fd for the given
	// single direction.
	CbData(fd int, mask Mask) interface{}

	// Wait blocks until fd is ready on one of the directions in mask or
	// the timeout elapses. It returns the ready directions, None on
	// timeout.
	Wait(fd int, mask Mask, timeout time.Duration) (Mask, error)

	// ScheduleTask arms a timed task firing after delay milliseconds.
	ScheduleTask(delayMs int64, cb FuncTask, data interface{}) TaskID

	// CancelTask removes a scheduled task.
	CancelTask(id TaskID)
}
