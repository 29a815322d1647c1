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

package ssl

import (
	"bytes"
	"encoding/json"

	libcfg "github.com/nabbar/golib/config"
)

var _defaultConfig = []byte(`{
  "enable_ssl": false,
  "certificate_file": "",
  "private_key_file": "",
  "dh_params_file": "",
  "root_ca_certs_path": "",
  "cipher_prefs": "",
  "ssl_performance_mode": "low-latency",
  "max_clients": 10000,
  "sync_timeout": "5s"
}`)

// SetDefaultConfig overrides the default configuration template.
func SetDefaultConfig(cfg []byte) {
	_defaultConfig = cfg
}

// DefaultConfig returns the default JSON configuration of the
// component.
func DefaultConfig(indent string) []byte {
	var res = bytes.NewBuffer(make([]byte, 0))
	if err := json.Indent(res, _defaultConfig, indent, libcfg.JSONIndent); err != nil {
		return _defaultConfig
	} else {
		return res.Bytes()
	}
}

func (o *componentSSL) DefaultConfig(indent string) []byte {
	return DefaultConfig(indent)
}
