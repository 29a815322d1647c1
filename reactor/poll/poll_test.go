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

package poll_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/reactor/poll"
)

var _ = Describe("poll loop", func() {
	var (
		lp     poll.Loop
		fd, pr int
	)

	BeforeEach(func() {
		lp = poll.New(nil)
		fd, pr = socketpair()
	})

	AfterEach(func() {
		_ = unix.Close(fd)
		_ = unix.Close(pr)
	})

	Context("interest registration", func() {
		It("should track masks per direction", func() {
			cb := func(int, interface{}, reactor.Mask) {}

			Expect(lp.Register(fd, reactor.Readable, cb, nil)).ToNot(HaveOccurred())
			Expect(lp.Mask(fd)).To(Equal(reactor.Readable))

			Expect(lp.Register(fd, reactor.Writable, cb, "data")).ToNot(HaveOccurred())
			Expect(lp.Mask(fd)).To(Equal(reactor.Readable | reactor.Writable))

			Expect(lp.CbData(fd, reactor.Writable)).To(Equal("data"))
			Expect(lp.Callback(fd, reactor.Readable)).ToNot(BeNil())

			lp.Unregister(fd, reactor.Readable)
			Expect(lp.Mask(fd)).To(Equal(reactor.Writable))

			lp.Unregister(fd, reactor.Writable)
			Expect(lp.Mask(fd)).To(Equal(reactor.None))
		})

		It("should refuse invalid registrations", func() {
			Expect(lp.Register(-1, reactor.Readable, func(int, interface{}, reactor.Mask) {}, nil)).To(HaveOccurred())
			Expect(lp.Register(fd, reactor.Readable, nil, nil)).To(HaveOccurred())
		})
	})

	Context("event dispatch", func() {
		It("should fire the readable callback when bytes arrive", func() {
			var got int

			Expect(lp.Register(fd, reactor.Readable, func(f int, _ interface{}, m reactor.Mask) {
				var b [16]byte
				n, _ := unix.Read(f, b[:])
				got += n
			}, nil)).ToNot(HaveOccurred())

			_, e := unix.Write(pr, []byte("ping"))
			Expect(e).ToNot(HaveOccurred())

			Expect(lp.Once(100 * time.Millisecond)).ToNot(HaveOccurred())
			Expect(got).To(Equal(4))
		})

		It("should fire the writable callback on a writable socket", func() {
			var fired bool

			Expect(lp.Register(fd, reactor.Writable, func(int, interface{}, reactor.Mask) {
				fired = true
				lp.Unregister(fd, reactor.Writable)
			}, nil)).ToNot(HaveOccurred())

			Expect(lp.Once(100 * time.Millisecond)).ToNot(HaveOccurred())
			Expect(fired).To(BeTrue())
			Expect(lp.Mask(fd)).To(Equal(reactor.None))
		})
	})

	Context("bounded wait", func() {
		It("should report readiness", func() {
			_, e := unix.Write(pr, []byte("x"))
			Expect(e).ToNot(HaveOccurred())

			m, err := lp.Wait(fd, reactor.Readable, 200*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Has(reactor.Readable)).To(BeTrue())
		})

		It("should time out on a silent fd", func() {
			m, err := lp.Wait(fd, reactor.Readable, 50*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(m).To(Equal(reactor.None))
		})
	})

	Context("timed tasks", func() {
		It("should run a due task and honor its reschedule", func() {
			var runs int

			id := lp.ScheduleTask(0, func(_ reactor.TaskID, _ interface{}) int64 {
				runs++
				if runs < 3 {
					return 0
				}
				return reactor.TaskStop
			}, nil)
			Expect(id).ToNot(Equal(reactor.NoTask))

			for i := 0; i < 5; i++ {
				Expect(lp.Once(10 * time.Millisecond)).ToNot(HaveOccurred())
			}

			Expect(runs).To(Equal(3))
		})

		It("should not run a cancelled task", func() {
			var runs int

			id := lp.ScheduleTask(0, func(_ reactor.TaskID, _ interface{}) int64 {
				runs++
				return reactor.TaskStop
			}, nil)

			lp.CancelTask(id)

			Expect(lp.Once(10 * time.Millisecond)).ToNot(HaveOccurred())
			Expect(runs).To(Equal(0))
		})
	})
})
