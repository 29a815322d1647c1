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

package tlsengine_test

import (
	"crypto/tls"
	"crypto/x509"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/codeboten/redis/ssl/perfmode"
	"github.com/codeboten/redis/tlsengine"
)

func buildEngines(fdSrv, fdCli int) (tlsengine.Engine, tlsengine.Engine) {
	pair, certPEM := genPair("engine.example.com")

	pool := x509.NewCertPool()
	Expect(pool.AppendCertsFromPEM(certPEM)).To(BeTrue())

	srv, err := tlsengine.New(tlsengine.Config{
		Role: tlsengine.RoleServer,
		TLS:  &tls.Config{Certificates: []tls.Certificate{pair}},
		Fd:   fdSrv,
		Mode: perfmode.LowLatency,
	})
	Expect(err).ToNot(HaveOccurred())

	cli, err := tlsengine.New(tlsengine.Config{
		Role:       tlsengine.RoleClient,
		TLS:        &tls.Config{RootCAs: pool},
		Fd:         fdCli,
		Mode:       perfmode.LowLatency,
		ServerName: "engine.example.com",
	})
	Expect(err).ToNot(HaveOccurred())

	return srv, cli
}

// stepBoth drives both sides of a handshake until each reports Done.
func stepBoth(srv, cli tlsengine.Engine) {
	var srvDone, cliDone bool

	for i := 0; i < 100 && !(srvDone && cliDone); i++ {
		if !cliDone {
			switch r := cli.Negotiate(); r {
			case tlsengine.Done:
				cliDone = true
			case tlsengine.WantRead, tlsengine.WantWrite:
			default:
				Fail("client handshake failed: " + cli.ErrString())
			}
		}

		if !srvDone {
			switch r := srv.Negotiate(); r {
			case tlsengine.Done:
				srvDone = true
			case tlsengine.WantRead, tlsengine.WantWrite:
			default:
				Fail("server handshake failed: " + srv.ErrString())
			}
		}
	}

	Expect(srvDone).To(BeTrue())
	Expect(cliDone).To(BeTrue())
}

var _ = Describe("tlsengine", func() {
	var (
		fdSrv, fdCli int
		srv, cli     tlsengine.Engine
	)

	BeforeEach(func() {
		fdSrv, fdCli = socketpair()
		srv, cli = buildEngines(fdSrv, fdCli)
	})

	AfterEach(func() {
		srv.Free()
		cli.Free()
		_ = unix.Close(fdSrv)
		_ = unix.Close(fdCli)
	})

	Context("handshake", func() {
		It("should complete when both sides are stepped", func() {
			Expect(srv.ClientHelloSeen()).To(BeFalse())

			stepBoth(srv, cli)

			Expect(srv.ClientHelloSeen()).To(BeTrue())
			Expect(srv.CipherName()).ToNot(BeEmpty())
			Expect(cli.CipherName()).To(Equal(srv.CipherName()))
		})

		It("should want a direction while the peer stays silent", func() {
			Expect(cli.Negotiate()).To(BeElementOf(tlsengine.WantRead, tlsengine.WantWrite))
			Expect(cli.Negotiate()).To(Equal(tlsengine.WantRead))
		})

		It("should fail against a peer that talks garbage", func() {
			_, e := unix.Write(fdCli, []byte("definitely not a client hello at all"))
			Expect(e).ToNot(HaveOccurred())

			var r tlsengine.Result

			for i := 0; i < 10; i++ {
				if r = srv.Negotiate(); r == tlsengine.Failed {
					break
				}
			}

			Expect(r).To(Equal(tlsengine.Failed))
			Expect(srv.ErrClass()).To(Equal(tlsengine.ClassTLS))
			Expect(srv.ErrString()).ToNot(BeEmpty())
		})
	})

	Context("application data", func() {
		BeforeEach(func() {
			stepBoth(srv, cli)
		})

		It("should carry data both ways", func() {
			var buf [64]byte

			n, r := srv.Send([]byte("hello"))
			Expect(r).To(Equal(tlsengine.Done))
			Expect(n).To(Equal(5))

			n, r = cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Done))
			Expect(string(buf[:n])).To(Equal("hello"))

			n, r = cli.Send([]byte("world"))
			Expect(r).To(Equal(tlsengine.Done))
			Expect(n).To(Equal(5))

			n, r = srv.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Done))
			Expect(string(buf[:n])).To(Equal("world"))
		})

		It("should report WantRead on an idle link", func() {
			var buf [8]byte

			_, r := cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.WantRead))
		})

		It("should keep a second record pending across a record boundary", func() {
			var buf [64]byte

			_, r := srv.Send([]byte("one"))
			Expect(r).To(Equal(tlsengine.Done))
			_, r = srv.Send([]byte("two"))
			Expect(r).To(Equal(tlsengine.Done))

			n, r := cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Done))
			Expect(string(buf[:n])).To(Equal("one"))
			Expect(cli.Pending()).To(BeTrue())

			n, r = cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Done))
			Expect(string(buf[:n])).To(Equal("two"))
			Expect(cli.Pending()).To(BeFalse())
		})

		It("should surface a close alert as Closed", func() {
			var buf [8]byte

			srv.Shutdown()

			_, r := cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Closed))
		})

		It("should report Closed after the peer vanished", func() {
			var buf [8]byte

			srv.Free()
			_ = unix.Close(fdSrv)
			fdSrv = -1

			var r tlsengine.Result

			for i := 0; i < 10; i++ {
				if _, r = cli.Recv(buf[:]); r != tlsengine.WantRead {
					break
				}
			}

			Expect(r).To(Equal(tlsengine.Closed))
		})

		It("should leave nothing pending once buffered ciphertext is detached", func() {
			var buf [64]byte

			_, r := srv.Send([]byte("first"))
			Expect(r).To(Equal(tlsengine.Done))

			n, r := cli.Recv(buf[:])
			Expect(r).To(Equal(tlsengine.Done))
			Expect(string(buf[:n])).To(Equal("first"))

			// whatever is still staged moves with the fd
			p := cli.DetachPending()
			Expect(cli.Pending()).To(BeFalse())
			_ = p
		})
	})
})
