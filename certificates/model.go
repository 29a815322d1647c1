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

package certificates

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	liberr "github.com/nabbar/golib/errors"
)

const pemTypeDHParams = "DH PARAMETERS"

func cleanPem(s []byte) []byte {
	s = bytes.TrimSpace(s)

	// remove \n\r
	s = bytes.Trim(s, "\n")
	s = bytes.Trim(s, "\r")

	// do again if \r\n
	s = bytes.Trim(s, "\n")
	s = bytes.Trim(s, "\r")

	return bytes.TrimSpace(s)
}

func parseLeaf(crt []byte) (*x509.Certificate, error) {
	b, _ := pem.Decode(crt)

	if b == nil {
		return nil, ErrorCertParse.Error(nil)
	}

	return x509.ParseCertificate(b.Bytes)
}

type asn1DHParams struct {
	P *big.Int
	G *big.Int
}

func parseDHParams(p []byte) (*DHParams, liberr.Error) {
	var (
		e error
		b *pem.Block
		d asn1DHParams
	)

	if b, _ = pem.Decode(cleanPem(p)); b == nil || b.Type != pemTypeDHParams {
		return nil, ErrorDHParamsParse.Error(nil)
	}

	if _, e = asn1.Unmarshal(b.Bytes, &d); e != nil {
		return nil, ErrorDHParamsParse.ErrorParent(e)
	}

	if d.P == nil || d.G == nil || d.P.Sign() < 1 || d.G.Sign() < 1 {
		return nil, ErrorDHParamsParse.Error(nil)
	}

	return &DHParams{
		Prime:     d.P.Bytes(),
		Generator: d.G.Int64(),
	}, nil
}

func loadCADir(pool *x509.CertPool, dir string) liberr.Error {
	var (
		e error
		l []os.DirEntry
		n int
	)

	if l, e = os.ReadDir(dir); e != nil {
		return ErrorCADirRead.ErrorParent(e)
	}

	for _, f := range l {
		if f.IsDir() {
			continue
		}

		/* #nosec */
		b, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}

		if pool.AppendCertsFromPEM(cleanPem(b)) {
			n++
		}
	}

	if n < 1 {
		return ErrorCADirEmpty.Error(nil)
	}

	return nil
}

func verifyChainFct(pool *x509.CertPool, verify HostVerifyFunc) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		var (
			e error
			c = make([]*x509.Certificate, 0, len(rawCerts))
		)

		for _, raw := range rawCerts {
			var crt *x509.Certificate
			if crt, e = x509.ParseCertificate(raw); e != nil {
				return ErrorCertParse.ErrorParent(e)
			}
			c = append(c, crt)
		}

		if len(c) < 1 {
			return ErrorCertParse.Error(nil)
		}

		opt := x509.VerifyOptions{
			Roots:         pool,
			Intermediates: x509.NewCertPool(),
		}

		for _, crt := range c[1:] {
			opt.Intermediates.AddCert(crt)
		}

		if _, e = c[0].Verify(opt); e != nil {
			return ErrorCertVerify.ErrorParent(e)
		}

		if verify != nil && !verify(c[0].Subject.CommonName) {
			return ErrorHostVerify.Error(nil)
		}

		return nil
	}
}

// parseCipherPrefs resolves an opaque colon separated preference string
// into cipher suite ids. Unknown names are skipped.
func parseCipherPrefs(prefs string) []uint16 {
	var res = make([]uint16, 0)

	for _, n := range strings.Split(prefs, ":") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}

		if c, ok := cipherByName(n); ok {
			res = append(res, c)
		}
	}

	if len(res) < 1 {
		return nil
	}

	return res
}
