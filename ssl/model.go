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
	"container/list"
	"context"
	"fmt"
	"os"
	"time"

	libatm "github.com/nabbar/golib/atomic"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	"github.com/codeboten/redis/certificates"
	"github.com/codeboten/redis/certificates/certinfo"
	"github.com/codeboten/redis/reactor"
	"github.com/codeboten/redis/tlsengine"
)

var osReadFile = os.ReadFile

type ssl struct {
	cfg Config
	rea reactor.Reactor
	log libatm.Value[liblog.FuncLog]
	fcl FuncForceClose

	reg []*session

	// generational server material
	srvCur   *certificates.ServerConfig
	srvCurAt time.Time
	srvPrev  *certificates.ServerConfig
	cli      *certificates.ClientConfig

	certPEM  string
	keyPEM   string
	dhPEM    string
	certFile string
	keyFile  string

	expected  string
	notBefore string
	notAfter  string
	serial    int64

	cntCur  int
	cntPrev int

	// repeated reads scheduler
	rrList *list.List
	rrTask reactor.TaskID
	rrRuns uint64
	rrMax  int

	// last failed operation, for ErrStr
	lastCls tlsengine.ErrClass
	lastOs  error
	lastMsg string
}

func (o *ssl) logger() liblog.Logger {
	if f := o.log.Load(); f == nil {
		return liblog.GetDefault()
	} else if l := f(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

func certinfoCN(certPEM string) (string, liberr.Error) {
	if cn, err := certinfo.ExtractCN([]byte(certPEM)); err != nil {
		return "", ErrorCertInspect.Error(err)
	} else {
		return cn, nil
	}
}

func certinfoValidity(certPEM string) (string, string, int64, liberr.Error) {
	if nb, na, sn, err := certinfo.ExtractValidityAndSerial([]byte(certPEM)); err != nil {
		return "", "", 0, ErrorCertInspect.Error(err)
	} else {
		return nb, na, sn, nil
	}
}

func (o *ssl) Enabled() bool {
	return o.cfg.Enable
}

func (o *ssl) ExpectedHostname() string {
	return o.expected
}

func (o *ssl) VerifyHost(peerName string) bool {
	return certinfo.MatchHost(peerName, o.expected)
}

func (o *ssl) CertDetails() (string, string, int64) {
	return o.notBefore, o.notAfter, o.serial
}

func (o *ssl) CipherName(fd int) string {
	if s := o.get(fd); s != nil {
		return s.eng.CipherName()
	}

	return ""
}

func (o *ssl) SetupClientFd(fd int) liberr.Error {
	if !o.cfg.Enable {
		return nil
	}

	if o.get(fd) != nil {
		return ErrorSessionExists.Error(nil)
	}

	_, err := o.newSession(fd, tlsengine.RoleServer, flagClientOrigin, "", nil)
	return err
}

func (o *ssl) CleanupFd(fd int) {
	o.freeSession(o.get(fd), true)
}

func (o *ssl) CleanupFdNoShutdown(fd int) {
	o.freeSession(o.get(fd), false)
}

// mustGet returns the session of fd. A shim call on an unbound fd means
// the fd lifecycle owner and this layer disagree about the connection;
// that cannot be continued through.
func (o *ssl) mustGet(fd int) *session {
	if s := o.get(fd); s != nil {
		return s
	}

	panic(fmt.Sprintf("ssl: no session bound to fd %d", fd))
}

func (o *ssl) Stats() Stats {
	return Stats{
		RepeatedReads:         o.rrRuns,
		RepeatedReadsQueue:    o.rrList.Len(),
		RepeatedReadsMaxQueue: o.rrMax,
		ConnectionsToCurrent:  o.cntCur,
		ConnectionsToPrevious: o.cntPrev,
	}
}

func (o *ssl) HealthCheck(ctx context.Context) error {
	if !o.cfg.Enable {
		return nil
	}

	if o.srvCur == nil || o.srvCur.Leaf() == nil {
		return ErrorConfigBuild.Error(nil)
	}

	var now = time.Now()

	if l := o.srvCur.Leaf(); now.Before(l.NotBefore) || now.After(l.NotAfter) {
		//nolint goerr113
		return fmt.Errorf("certificate outside validity window [%s, %s]", o.notBefore, o.notAfter)
	}

	return nil
}
