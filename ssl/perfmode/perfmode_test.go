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

package perfmode_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/codeboten/redis/ssl/perfmode"
)

var _ = Describe("perfmode", func() {
	Context("parsing strings", func() {
		It("should map the canonical names", func() {
			Expect(perfmode.Parse("low-latency")).To(Equal(perfmode.LowLatency))
			Expect(perfmode.Parse("high-throughput")).To(Equal(perfmode.HighThroughput))
		})

		It("should tolerate case and separators", func() {
			Expect(perfmode.Parse("Low_Latency")).To(Equal(perfmode.LowLatency))
			Expect(perfmode.Parse("HIGH THROUGHPUT")).To(Equal(perfmode.HighThroughput))
		})

		It("should return Unknown for anything else", func() {
			Expect(perfmode.Parse("")).To(Equal(perfmode.Unknown))
			Expect(perfmode.Parse("turbo")).To(Equal(perfmode.Unknown))
		})
	})

	Context("parsing integers", func() {
		It("should map 0 and 1, anything else is Unknown", func() {
			Expect(perfmode.ParseInt(0)).To(Equal(perfmode.LowLatency))
			Expect(perfmode.ParseInt(1)).To(Equal(perfmode.HighThroughput))
			Expect(perfmode.ParseInt(2)).To(Equal(perfmode.Unknown))
			Expect(perfmode.ParseInt(-1)).To(Equal(perfmode.Unknown))
			Expect(perfmode.ParseInt(4096)).To(Equal(perfmode.Unknown))
		})
	})

	Context("formatting", func() {
		It("should keep the name to int mapping stable", func() {
			Expect(perfmode.LowLatency.Int()).To(Equal(0))
			Expect(perfmode.HighThroughput.Int()).To(Equal(1))
			Expect(perfmode.Unknown.Int()).To(Equal(-1))
		})

		It("should render Unknown as an empty string", func() {
			Expect(perfmode.Unknown.String()).To(BeEmpty())
		})
	})

	Context("validity check", func() {
		It("should accept only the known modes", func() {
			Expect(perfmode.LowLatency.Check()).To(BeTrue())
			Expect(perfmode.HighThroughput.Check()).To(BeTrue())
			Expect(perfmode.Unknown.Check()).To(BeFalse())
		})
	})

	Context("encoding", func() {
		It("should round trip through JSON", func() {
			var (
				v = perfmode.HighThroughput
				r perfmode.PerfMode
			)

			p, e := json.Marshal(v)
			Expect(e).ToNot(HaveOccurred())
			Expect(string(p)).To(Equal(`"high-throughput"`))

			Expect(json.Unmarshal(p, &r)).ToNot(HaveOccurred())
			Expect(r).To(Equal(v))
		})

		It("should round trip through YAML", func() {
			var (
				v = perfmode.LowLatency
				r perfmode.PerfMode
			)

			p, e := yaml.Marshal(v)
			Expect(e).ToNot(HaveOccurred())

			Expect(yaml.Unmarshal(p, &r)).ToNot(HaveOccurred())
			Expect(r).To(Equal(v))
		})

		It("should round trip through Text", func() {
			var (
				v = perfmode.HighThroughput
				r perfmode.PerfMode
			)

			p, e := v.MarshalText()
			Expect(e).ToNot(HaveOccurred())

			Expect(r.UnmarshalText(p)).ToNot(HaveOccurred())
			Expect(r).To(Equal(v))
		})

		It("should round trip through CBOR", func() {
			var (
				v = perfmode.LowLatency
				r perfmode.PerfMode
			)

			p, e := v.MarshalCBOR()
			Expect(e).ToNot(HaveOccurred())

			Expect(r.UnmarshalCBOR(p)).ToNot(HaveOccurred())
			Expect(r).To(Equal(v))
		})
	})
})
