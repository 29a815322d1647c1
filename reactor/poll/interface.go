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

// Package poll carries a minimal poll(2) backed event loop implementing
// the reactor contract. One goroutine owns the loop; callbacks and tasks
// run to completion on it. It exists so the session layer can be driven
// end to end in tests without an external server core.
package poll

import (
	"context"
	"time"

	liblog "github.com/nabbar/golib/logger"

	"github.com/codeboten/redis/reactor"
)

// Loop is a drivable reactor: Once dispatches one batch of ready events
// and due tasks, Run loops until the context ends.
type Loop interface {
	reactor.Reactor

	// Once polls every registered fd, dispatches ready callbacks, then
	// runs due tasks. It blocks at most timeout when nothing is ready.
	Once(timeout time.Duration) error

	// Run calls Once until the context is done.
	Run(ctx context.Context) error
}

// New returns an empty loop.
func New(log liblog.FuncLog) Loop {
	return &loop{
		log: log,
		fds: make(map[int]*fdEntry),
		tsk: make(map[reactor.TaskID]*task),
		nxt: 1,
	}
}
