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

// Package certificates builds the immutable TLS material consumed by the
// session layer.
//
// A ServerConfig carries the certificate chain, the private key, the DH
// parameters and the resolved cipher preferences of one certificate
// generation. A ClientConfig carries the trust roots, the cipher
// preferences and the peer verification callback used for outgoing
// connections (cluster bus peers and replication masters).
//
// Both configurations are immutable once built: certificate rotation
// builds a whole new ServerConfig and swaps it in, it never mutates a
// live one.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	liberr "github.com/nabbar/golib/errors"
)

// HostVerifyFunc checks a peer name extracted from a verified certificate
// chain. It returns true if the peer name is acceptable.
type HostVerifyFunc func(peerName string) bool

// ServerConfig is the TLS material of one server certificate generation.
type ServerConfig struct {
	chain   tls.Certificate
	leaf    *x509.Certificate
	dh      *DHParams
	ciphers []uint16
	created time.Time
}

// ClientConfig is the TLS material used for outgoing connections.
type ClientConfig struct {
	roots   *x509.CertPool
	ciphers []uint16
	verify  HostVerifyFunc
}

// DHParams is the parsed content of a PEM "DH PARAMETERS" block.
//
// The Go TLS stack negotiates key agreement over elliptic curves and has
// no finite-field DHE support, so the parameters are validated and kept
// for operator feedback but take no part in the handshake.
type DHParams struct {
	Prime     []byte
	Generator int64
}

// BuildServer builds a ServerConfig from PEM material.
//
// certPEM and keyPEM are the certificate chain and private key. dhPEM is
// optional DH parameters material; when non empty it must be a valid
// "DH PARAMETERS" PEM block. cipherPrefs is an opaque preference string
// (colon separated OpenSSL style names); unknown names are skipped and an
// empty string leaves the engine defaults in place.
func BuildServer(certPEM, keyPEM, dhPEM string, cipherPrefs string) (*ServerConfig, liberr.Error) {
	var (
		e   error
		c   = &ServerConfig{created: time.Now()}
		crt = cleanPem([]byte(certPEM))
		key = cleanPem([]byte(keyPEM))
	)

	if len(crt) < 1 || len(key) < 1 {
		return nil, ErrorParamEmpty.Error(nil)
	}

	if c.chain, e = tls.X509KeyPair(crt, key); e != nil {
		return nil, ErrorCertKeyPairParse.ErrorParent(e)
	}

	if c.leaf, e = parseLeaf(crt); e != nil {
		return nil, ErrorCertParse.ErrorParent(e)
	}

	if len(cleanPem([]byte(dhPEM))) > 0 {
		if d, err := parseDHParams([]byte(dhPEM)); err != nil {
			return nil, err
		} else {
			c.dh = d
		}
	}

	c.ciphers = parseCipherPrefs(cipherPrefs)

	return c, nil
}

// BuildClient builds a ClientConfig.
//
// The trust pool is loaded from every readable PEM file under caDir, and
// trustPEM (usually the local certificate chain) is appended to it so
// intermediates presented by peers of the same deployment are accepted.
// verify replaces the engine's endpoint name check, see the certinfo
// subpackage.
func BuildClient(cipherPrefs, trustPEM, caDir string, verify HostVerifyFunc) (*ClientConfig, liberr.Error) {
	var (
		c = &ClientConfig{
			roots:  x509.NewCertPool(),
			verify: verify,
		}
	)

	if caDir != "" {
		if err := loadCADir(c.roots, caDir); err != nil {
			return nil, err
		}
	}

	if p := cleanPem([]byte(trustPEM)); len(p) > 0 {
		if !c.roots.AppendCertsFromPEM(p) {
			return nil, ErrorCertAppend.Error(nil)
		}
	}

	c.ciphers = parseCipherPrefs(cipherPrefs)

	return c, nil
}

// CreatedAt returns the build time of the configuration. The rotation
// layer compares session creation times against it to decide which
// generation a session belongs to.
func (c *ServerConfig) CreatedAt() time.Time {
	return c.created
}

// Leaf returns the parsed leaf certificate of the chain.
func (c *ServerConfig) Leaf() *x509.Certificate {
	return c.leaf
}

// DH returns the parsed DH parameters, or nil if none were given.
func (c *ServerConfig) DH() *DHParams {
	return c.dh
}

// TlsConfig renders the server side engine configuration.
func (c *ServerConfig) TlsConfig() *tls.Config {
	/* #nosec */
	cnf := &tls.Config{
		Certificates: []tls.Certificate{c.chain},
	}

	if len(c.ciphers) > 0 {
		cnf.PreferServerCipherSuites = true
		cnf.CipherSuites = append(make([]uint16, 0), c.ciphers...)
	}

	return cnf
}

// TlsConfig renders the client side engine configuration for the given
// SNI server name. Chain verification runs against the trust pool; the
// endpoint name check is replaced by the configured HostVerifyFunc
// because cluster peers are addressed by IP.
func (c *ClientConfig) TlsConfig(serverName string) *tls.Config {
	var (
		pool   = c.roots
		verify = c.verify
	)

	/* #nosec */
	cnf := &tls.Config{
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyChainFct(pool, verify),
	}

	if serverName != "" {
		cnf.ServerName = serverName
	}

	if len(c.ciphers) > 0 {
		cnf.CipherSuites = append(make([]uint16, 0), c.ciphers...)
	}

	return cnf
}
