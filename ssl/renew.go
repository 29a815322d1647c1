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
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"

	"github.com/codeboten/redis/certificates"
)

// Renew hot swaps the server certificate material.
//
// The displaced configuration is kept alive for sessions that
// negotiated under it; at most two configurations exist at any time, so
// a rotation first retires the oldest generation: its remaining
// sessions are force closed, and every surviving client session is
// marked as belonging to the now previous generation. No state changes
// unless the new material builds and inspects cleanly.
func (o *ssl) Renew(certPEM, keyPEM, certFile, keyFile string) liberr.Error {
	if !o.cfg.Enable {
		return ErrorDisabled.Error(nil)
	}

	var (
		err liberr.Error
		srv *certificates.ServerConfig
	)

	if srv, err = certificates.BuildServer(certPEM, keyPEM, o.dhPEM, o.cfg.CipherPrefs); err != nil {
		return ErrorConfigBuild.Error(err)
	}

	nb, na, sn, err := certinfoValidity(certPEM)
	if err != nil {
		return err
	}

	if o.srvPrev != nil {
		// two generations already live: evict whatever still runs on
		// the oldest before shifting
		for _, s := range o.clientSessions() {
			if !s.created.After(o.srvCurAt) {
				o.forceClose(s)
			}
		}

		for _, s := range o.clientSessions() {
			s.set(flagOldGeneration)
		}

		o.srvPrev = nil
	} else {
		for _, s := range o.clientSessions() {
			s.set(flagOldGeneration)
		}
	}

	o.srvPrev = o.srvCur
	o.srvCur = srv
	o.srvCurAt = srv.CreatedAt()

	o.certPEM = certPEM
	o.keyPEM = keyPEM
	o.certFile = certFile
	o.keyFile = keyFile
	o.notBefore = nb
	o.notAfter = na
	o.serial = sn

	o.cntPrev = o.cntCur
	o.cntCur = 0

	o.logger().Entry(loglvl.InfoLevel, "ssl certificate renewed").
		FieldAdd("certFile", certFile).
		FieldAdd("serial", sn).
		FieldAdd("notAfter", na).
		FieldAdd("previousGeneration", o.cntPrev).
		Log()

	return nil
}

func (o *ssl) clientSessions() []*session {
	var res = make([]*session, 0)

	for _, s := range o.reg {
		if s != nil && s.has(flagClientOrigin) {
			res = append(res, s)
		}
	}

	return res
}

func (o *ssl) forceClose(s *session) {
	o.logger().Entry(loglvl.WarnLevel, "closing client of retired certificate generation").
		FieldAdd("fd", s.fd).
		Log()

	if o.fcl != nil {
		o.fcl(s.fd)
	}

	// the closer owns the fd teardown; make sure the session itself is
	// gone even if it did not come back through CleanupFd
	if o.get(s.fd) == s {
		o.freeSession(s, true)
	}
}
