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

// Package certinfo extracts identity and validity data from PEM encoded
// X.509 certificates and implements the peer name matching used on
// cluster bus and replication connections.
//
// The name matching intentionally replaces the engine's endpoint name
// check: cluster peers are addressed by IP, so the expected common name
// is configured process wide and every peer certificate is matched
// against it, not against the dialed address.
package certinfo

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"time"

	liberr "github.com/nabbar/golib/errors"
)

// MaxCommonNameLen bounds the accepted length of a subject common name.
const MaxCommonNameLen = 256

// timeLayout is the engine's text rendering of an ASN.1 time.
const timeLayout = "Jan _2 15:04:05 2006"

func parsePem(p []byte) (*x509.Certificate, liberr.Error) {
	b, _ := pem.Decode(p)

	if b == nil {
		return nil, ErrorPEMDecode.Error(nil)
	}

	if c, e := x509.ParseCertificate(b.Bytes); e != nil {
		return nil, ErrorCertParse.ErrorParent(e)
	} else {
		return c, nil
	}
}

// ExtractCN returns the subject common name of the given PEM certificate.
func ExtractCN(p []byte) (string, liberr.Error) {
	var (
		c   *x509.Certificate
		err liberr.Error
	)

	if c, err = parsePem(p); err != nil {
		return "", err
	}

	cn := c.Subject.CommonName

	if len(cn) < 1 || len(cn) > MaxCommonNameLen {
		return "", ErrorNoCommonName.Error(nil)
	}

	return cn, nil
}

func renderTime(t time.Time) string {
	return t.UTC().Format(timeLayout) + " GMT"
}

// ExtractValidityAndSerial returns the validity window, rendered in the
// engine's ASN.1 text form, and the serial number of the given PEM
// certificate.
//
// A zero serial number is rejected. Such certificates are legal but the
// wire compatible behaviour treats them as a parse failure.
func ExtractValidityAndSerial(p []byte) (notBefore string, notAfter string, serial int64, err liberr.Error) {
	var c *x509.Certificate

	if c, err = parsePem(p); err != nil {
		return "", "", 0, err
	}

	if c.SerialNumber == nil || c.SerialNumber.Sign() == 0 {
		return "", "", 0, ErrorSerialZero.Error(nil)
	}

	return renderTime(c.NotBefore), renderTime(c.NotAfter), c.SerialNumber.Int64(), nil
}

// MatchHost matches a peer name from a verified certificate against the
// expected process wide hostname.
//
// A match is either a case insensitive exact match, or a one level
// wildcard: a peer name starting with "*." matches when its suffix from
// that dot onward equals, case insensitively, the suffix of the expected
// name from the expected name's first dot. A peer name of just "*" or
// "*." never matches. An empty expected name matches nothing.
func MatchHost(peerName, expected string) bool {
	if expected == "" || peerName == "" {
		return false
	}

	if strings.EqualFold(peerName, expected) {
		return true
	}

	if len(peerName) <= 2 || !strings.HasPrefix(peerName, "*.") {
		return false
	}

	i := strings.IndexByte(expected, '.')
	if i < 0 {
		return false
	}

	return strings.EqualFold(peerName[1:], expected[i:])
}
