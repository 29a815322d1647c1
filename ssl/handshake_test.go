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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/reactor/poll"
	libssl "github.com/codeboten/redis/ssl"
)

// countingReactor counts interest edits on top of a real loop.
type countingReactor struct {
	poll.Loop
	registers   int
	unregisters int
}

func (o *countingReactor) Register(fd int, mask reactor.Mask, cb reactor.FuncEvent, data interface{}) error {
	o.registers++
	return o.Loop.Register(fd, mask, cb, data)
}

func (o *countingReactor) Unregister(fd int, mask reactor.Mask) {
	if o.Loop.Mask(fd)&mask != 0 {
		o.unregisters++
	}
	o.Loop.Unregister(fd, mask)
}

var _ = Describe("handshake driver", func() {
	var (
		lp           poll.Loop
		sfd, pfd     int
	)

	BeforeEach(func() {
		lp = poll.New(nil)
		sfd, pfd = socketpair()
	})

	AfterEach(func() {
		_ = unix.Close(sfd)
		_ = unix.Close(pfd)
	})

	Context("client command connection", func() {
		It("should handshake, install the command handler, and serve one round trip", func() {
			var (
				lay   = newLayer(lp, nil)
				done  bool
				reply = make(chan []byte, 1)
			)

			echo := func(fd int, _ interface{}, _ reactor.Mask) {
				var buf [128]byte

				n, e := lay.Read(fd, buf[:])
				if n <= 0 || e != nil {
					return
				}

				if bytes.Contains(buf[:n], []byte("PING\r\n")) {
					_, _ = lay.Write(fd, []byte("+PONG\r\n"))
				}
			}

			err := lay.HandshakeWithClient(sfd, libssl.Callsite{
				OnDone:      func(int) { done = true },
				PostHandler: echo,
				PostMask:    reactor.Readable,
			})
			Expect(err).ToNot(HaveOccurred())

			peer := tlsPeer(pfd)
			pfd = -1

			go func() {
				defer GinkgoRecover()

				Expect(peer.Handshake()).ToNot(HaveOccurred())

				_, e := peer.Write([]byte("PING\r\n"))
				Expect(e).ToNot(HaveOccurred())

				var buf [32]byte
				n, e := peer.Read(buf[:])
				Expect(e).ToNot(HaveOccurred())

				reply <- append([]byte(nil), buf[:n]...)
			}()

			drive(lp, 5*time.Second, func() bool { return done })
			Expect(lay.CipherName(sfd)).ToNot(BeEmpty())

			var got []byte
			drive(lp, 5*time.Second, func() bool {
				select {
				case got = <-reply:
					return true
				default:
					return false
				}
			})

			Expect(string(got)).To(Equal("+PONG\r\n"))

			Expect(peer.Close()).ToNot(HaveOccurred())
			lay.CleanupFd(sfd)
			Expect(lay.HasSession(sfd)).To(BeFalse())
		})
	})

	Context("failure recovery", func() {
		It("should report failure against a peer that talks garbage", func() {
			var (
				lay    = newLayer(lp, nil)
				failed bool
			)

			err := lay.HandshakeWithClient(sfd, libssl.Callsite{
				OnFailed: func(int) { failed = true },
			})
			Expect(err).ToNot(HaveOccurred())

			_, e := unix.Write(pfd, []byte("this is not a tls client hello"))
			Expect(e).ToNot(HaveOccurred())

			drive(lp, 5*time.Second, func() bool { return failed })

			Expect(lay.ErrStr()).ToNot(BeEmpty())
			lay.CleanupFd(sfd)
		})

		It("should fail an outgoing cluster link whose socket error check fails", func() {
			var (
				lay    = newLayer(lp, nil)
				failed bool
			)

			// a freshly closed peer leaves a readable-EOF socket, not a
			// socket error; closing our own end instead makes the socket
			// error query itself fail, which takes the same failure path
			Expect(unix.Close(sfd)).ToNot(HaveOccurred())

			err := lay.HandshakeWithClusterAsClient(sfd, libssl.Callsite{
				OnFailed: func(int) { failed = true },
			})

			Expect(err).To(HaveOccurred())
			Expect(failed).To(BeTrue())

			sfd = -1
		})
	})

	Context("interest management", func() {
		It("should not edit the interest again while blocked on the same direction", func() {
			var (
				cnt = &countingReactor{Loop: lp}
				lay = newLayer(cnt, nil)
			)

			Expect(lay.HandshakeWithClient(sfd, libssl.Callsite{})).ToNot(HaveOccurred())
			Expect(cnt.registers).To(Equal(1))

			cb := cnt.Callback(sfd, reactor.Readable)
			data := cnt.CbData(sfd, reactor.Readable)
			Expect(cb).ToNot(BeNil())

			// the peer stays silent: every step blocks on read again
			for i := 0; i < 5; i++ {
				cb(sfd, data, reactor.Readable)
			}

			Expect(cnt.registers).To(Equal(1))
			Expect(cnt.Mask(sfd)).To(Equal(reactor.Readable))

			lay.CleanupFd(sfd)
		})
	})

	Context("synchronous negotiation", func() {
		It("should complete against a live peer", func() {
			var lay = newLayer(lp, nil)

			Expect(lay.SetupClientFd(sfd)).ToNot(HaveOccurred())

			peer := tlsPeer(pfd)
			pfd = -1

			go func() {
				defer GinkgoRecover()
				Expect(peer.Handshake()).ToNot(HaveOccurred())
			}()

			Expect(lay.SyncNegotiate(sfd, 3*time.Second)).ToNot(HaveOccurred())
			Expect(lay.CipherName(sfd)).ToNot(BeEmpty())

			Expect(peer.Close()).ToNot(HaveOccurred())
			lay.CleanupFd(sfd)
		})

		It("should time out against a silent peer", func() {
			var lay = newLayer(lp, nil)

			Expect(lay.SetupClientFd(sfd)).ToNot(HaveOccurred())

			err := lay.SyncNegotiate(sfd, 100*time.Millisecond)
			Expect(err).To(HaveOccurred())

			lay.CleanupFd(sfd)
		})
	})

	Context("disabled layer", func() {
		It("should complete the call site immediately", func() {
			var (
				done bool
				cfg  = libssl.Config{Enable: false}
			)

			lay, err := libssl.New(cfg, lp, nil, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(lay.Enabled()).To(BeFalse())

			var fired bool

			Expect(lay.HandshakeWithClient(sfd, libssl.Callsite{
				OnDone:      func(int) { done = true },
				PostHandler: func(int, interface{}, reactor.Mask) { fired = true },
				PostMask:    reactor.Readable,
			})).ToNot(HaveOccurred())

			Expect(done).To(BeTrue())

			_, e := unix.Write(pfd, []byte("x"))
			Expect(e).ToNot(HaveOccurred())

			drive(lp, time.Second, func() bool { return fired })
		})
	})
})
