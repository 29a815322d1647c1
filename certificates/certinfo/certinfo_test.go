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

package certinfo_test

import (
	"math/big"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codeboten/redis/certificates/certinfo"
)

var _ = Describe("certinfo", func() {
	Context("ExtractCN", func() {
		It("should return the subject common name", func() {
			p := genCertificateSerial("redis-7.example.com", big.NewInt(42))

			cn, err := certinfo.ExtractCN(p)
			Expect(err).ToNot(HaveOccurred())
			Expect(cn).To(Equal("redis-7.example.com"))
		})

		It("should fail on a certificate without common name", func() {
			p := genCertificateSerial("", big.NewInt(42))

			_, err := certinfo.ExtractCN(p)
			Expect(err).To(HaveOccurred())
		})

		It("should fail on garbage input", func() {
			_, err := certinfo.ExtractCN([]byte("not a pem"))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("ExtractValidityAndSerial", func() {
		It("should render the validity window and the serial", func() {
			p := genCertificateSerial("redis-7.example.com", big.NewInt(123456))

			nb, na, sn, err := certinfo.ExtractValidityAndSerial(p)
			Expect(err).ToNot(HaveOccurred())
			Expect(sn).To(Equal(int64(123456)))
			Expect(nb).To(Equal("Jun  1 12:00:00 2023 GMT"))
			Expect(na).To(Equal("Jun  1 12:00:00 2033 GMT"))
		})

		It("should fail on garbage input", func() {
			_, _, _, err := certinfo.ExtractValidityAndSerial([]byte("boom"))
			Expect(err).To(HaveOccurred())
		})

		It("should reject a zero serial number", func() {
			p := genCertificateSerial("redis-7.example.com", big.NewInt(0))

			_, _, _, err := certinfo.ExtractValidityAndSerial(p)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("MatchHost", func() {
		const expected = "redis-7.example.com"

		It("should accept a case insensitive exact match", func() {
			Expect(certinfo.MatchHost("redis-7.example.com", expected)).To(BeTrue())
			Expect(certinfo.MatchHost("redis-7.EXAMPLE.com", expected)).To(BeTrue())
		})

		It("should accept a one level wildcard of the same domain", func() {
			Expect(certinfo.MatchHost("*.example.com", expected)).To(BeTrue())
			Expect(certinfo.MatchHost("*.EXAMPLE.COM", expected)).To(BeTrue())
		})

		It("should reject a wildcard of another domain", func() {
			Expect(certinfo.MatchHost("*.other.com", expected)).To(BeFalse())
		})

		It("should reject bare wildcards", func() {
			Expect(certinfo.MatchHost("*", expected)).To(BeFalse())
			Expect(certinfo.MatchHost("*.", expected)).To(BeFalse())
		})

		It("should reject a different host", func() {
			Expect(certinfo.MatchHost("redis-8.example.com", expected)).To(BeFalse())
		})

		It("should reject everything without an expected name", func() {
			Expect(certinfo.MatchHost("redis-7.example.com", "")).To(BeFalse())
			Expect(certinfo.MatchHost("*.example.com", "")).To(BeFalse())
		})

		It("should reject a wildcard against a dotless expected name", func() {
			Expect(certinfo.MatchHost("*.example.com", "localhost")).To(BeFalse())
		})
	})
})
