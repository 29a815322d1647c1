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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	spfvbr "github.com/spf13/viper"

	libssl "github.com/codeboten/redis/ssl"
	"github.com/codeboten/redis/ssl/perfmode"
)

var _ = Describe("layer configuration", func() {
	Context("validation", func() {
		It("should accept a disabled layer without material", func() {
			c := libssl.Config{Enable: false}
			Expect(c.Validate()).ToNot(HaveOccurred())
		})

		It("should require material when enabled", func() {
			c := libssl.Config{Enable: true}
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should accept a complete enabled config", func() {
			c := libssl.Config{
				Enable:          true,
				CertificateFile: "server.crt",
				PrivateKeyFile:  "server.key",
				PerformanceMode: perfmode.HighThroughput,
			}
			Expect(c.Validate()).ToNot(HaveOccurred())
		})
	})

	Context("registry sizing", func() {
		It("should apply the default client limit plus headroom", func() {
			c := libssl.Config{}
			Expect(c.RegistrySize()).To(Equal(libssl.DefaultMaxClients + libssl.RegistryHeadroom))
		})

		It("should apply the configured client limit plus headroom", func() {
			c := libssl.Config{MaxClients: 64}
			Expect(c.RegistrySize()).To(Equal(64 + libssl.RegistryHeadroom))
		})
	})

	Context("viper decoding", func() {
		It("should decode the performance mode from its name", func() {
			var (
				cfg libssl.Config
				vpr = spfvbr.New()
			)

			vpr.SetConfigType("json")

			Expect(vpr.ReadConfig(bytes.NewBufferString(`{
  "enable_ssl": true,
  "certificate_file": "server.crt",
  "private_key_file": "server.key",
  "cipher_prefs": "ECDHE-RSA-AES128-GCM-SHA256",
  "ssl_performance_mode": "high-throughput"
}`))).ToNot(HaveOccurred())

			Expect(vpr.Unmarshal(&cfg, spfvbr.DecodeHook(libssl.ViperDecoderHook()))).ToNot(HaveOccurred())

			Expect(cfg.Enable).To(BeTrue())
			Expect(cfg.CertificateFile).To(Equal("server.crt"))
			Expect(cfg.PrivateKeyFile).To(Equal("server.key"))
			Expect(cfg.CipherPrefs).To(Equal("ECDHE-RSA-AES128-GCM-SHA256"))
			Expect(cfg.PerformanceMode).To(Equal(perfmode.HighThroughput))
		})
	})
})
