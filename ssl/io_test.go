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

package ssl_test

import (
	"bytes"
	"crypto/tls"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/reactor/poll"
	libssl "github.com/codeboten/redis/ssl"
)

var _ = Describe("I/O shims", func() {
	var (
		lp       poll.Loop
		sfd, pfd int
	)

	BeforeEach(func() {
		lp = poll.New(nil)
		sfd, pfd = socketpair()
	})

	AfterEach(func() {
		if sfd >= 0 {
			_ = unix.Close(sfd)
		}
		if pfd >= 0 {
			_ = unix.Close(pfd)
		}
	})

	// handshake the layer side of sfd against a goroutine driven peer
	// and return the established peer connection.
	establish := func(lay libssl.SSL, collect reactor.FuncEvent) *tls.Conn {
		var done bool

		Expect(lay.HandshakeWithClient(sfd, libssl.Callsite{
			OnDone:      func(int) { done = true },
			PostHandler: collect,
			PostMask:    reactor.Readable,
		})).ToNot(HaveOccurred())

		peer := tlsPeer(pfd)
		pfd = -1

		go func() {
			defer GinkgoRecover()
			Expect(peer.Handshake()).ToNot(HaveOccurred())
		}()

		drive(lp, 5*time.Second, func() bool { return done })

		return peer
	}

	Context("plain passthrough", func() {
		It("should behave like the raw socket when the layer is disabled", func() {
			lay, err := libssl.New(libssl.Config{Enable: false}, lp, nil, nil)
			Expect(err).ToNot(HaveOccurred())

			n, e := lay.Write(sfd, []byte("abc"))
			Expect(e).ToNot(HaveOccurred())
			Expect(n).To(Equal(3))

			var buf [8]byte
			n, e = lay.Read(pfd, buf[:])
			Expect(e).ToNot(HaveOccurred())
			Expect(string(buf[:n])).To(Equal("abc"))

			n, e = lay.Ping(sfd)
			Expect(e).ToNot(HaveOccurred())
			Expect(n).To(Equal(1))

			n, e = lay.Read(pfd, buf[:])
			Expect(e).ToNot(HaveOccurred())
			Expect(string(buf[:n])).To(Equal("\n"))

			// empty socket surfaces the OS would-block errno
			_, e = lay.Read(pfd, buf[:])
			Expect(e).To(Equal(unix.EAGAIN))
		})
	})

	Context("buffered record continuation", func() {
		It("should drain a second record without another socket event", func() {
			var (
				got bytes.Buffer
				lay = newLayer(lp, nil)
			)

			collect := func(fd int, _ interface{}, _ reactor.Mask) {
				var buf [16]byte

				if n, e := lay.Read(fd, buf[:]); n > 0 && e == nil {
					got.Write(buf[:n])
				}
			}

			peer := establish(lay, collect)

			// two records land in the socket before the loop looks at it
			_, e := peer.Write([]byte("aaaa"))
			Expect(e).ToNot(HaveOccurred())
			_, e = peer.Write([]byte("bbbb"))
			Expect(e).ToNot(HaveOccurred())

			time.Sleep(50 * time.Millisecond)

			drive(lp, 5*time.Second, func() bool { return got.String() == "aaaabbbb" })

			st := lay.Stats()
			Expect(st.RepeatedReads).To(BeNumerically(">=", 1))
			Expect(st.RepeatedReadsQueue).To(Equal(0))
			Expect(st.RepeatedReadsMaxQueue).To(BeNumerically(">=", 1))

			Expect(peer.Close()).ToNot(HaveOccurred())
			lay.CleanupFd(sfd)
		})
	})

	Context("heartbeat during a congested write", func() {
		It("should linearize the heartbeat byte before later writes", func() {
			var (
				lay     = newLayer(lp, nil)
				sent    int
				chunk   = bytes.Repeat([]byte("a"), 32*1024)
				tail    = make(chan string, 1)
			)

			peer := establish(lay, func(int, interface{}, reactor.Mask) {})

			// saturate the transport: accepted plaintext counts, the
			// first blocked write leaves ciphertext queued
			for i := 0; i < 64; i++ {
				n, e := lay.Write(sfd, chunk)
				if e != nil {
					Expect(e).To(Equal(unix.EAGAIN))
					break
				}
				sent += n
			}
			Expect(sent).To(BeNumerically(">", 0))

			// the heartbeat cannot be accepted now
			_, e := lay.Ping(sfd)
			Expect(e).To(Equal(unix.EAGAIN))

			// peer drains everything, watching for the heartbeat and
			// the command that must follow it
			go func() {
				defer GinkgoRecover()

				var all bytes.Buffer

				for {
					var buf [64 * 1024]byte
					n, re := peer.Read(buf[:])
					if n > 0 {
						all.Write(buf[:n])
					}
					if re != nil {
						break
					}
					if strings.HasSuffix(all.String(), "\nGET x\r\n") {
						break
					}
				}

				tail <- all.String()
			}()

			// retry until the queued heartbeat flushed and the command
			// went through
			for {
				if _, we := lay.Write(sfd, []byte("GET x\r\n")); we == nil {
					break
				} else {
					Expect(we).To(Equal(unix.EAGAIN))
				}
				time.Sleep(5 * time.Millisecond)
			}

			var all string
			Eventually(tail, 5*time.Second).Should(Receive(&all))

			Expect(strings.HasSuffix(all, "\nGET x\r\n")).To(BeTrue())
			Expect(strings.Count(all, "\n")).To(Equal(2), "exactly the heartbeat and the command terminator")
			Expect(strings.TrimRight(all, "\nGET x\r")).To(Equal(strings.Repeat("a", sent)))

			Expect(peer.Close()).ToNot(HaveOccurred())
			lay.CleanupFd(sfd)
		})
	})
})
