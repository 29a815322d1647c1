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

import "github.com/nabbar/golib/errors"

const (
	ErrorParamEmpty errors.CodeError = iota + errors.MinAvailable + 80
	ErrorValidatorError
	ErrorDisabled
	ErrorConfigRead
	ErrorConfigBuild
	ErrorCertInspect
	ErrorSessionExists
	ErrorSessionMissing
	ErrorEngineCreate
	ErrorHandshakeFailed
	ErrorHandshakeTimeout
	ErrorSocketError
	ErrorRegistryShrink
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorParamEmpty)
	errors.RegisterIdFctMessage(ErrorParamEmpty, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorParamEmpty:
		return "given parameters is empty"
	case ErrorValidatorError:
		return "ssl : invalid config"
	case ErrorDisabled:
		return "ssl layer is disabled"
	case ErrorConfigRead:
		return "cannot read ssl material file"
	case ErrorConfigBuild:
		return "cannot build ssl configuration"
	case ErrorCertInspect:
		return "cannot extract certificate details"
	case ErrorSessionExists:
		return "a session is already bound to this fd"
	case ErrorSessionMissing:
		return "no session bound to this fd"
	case ErrorEngineCreate:
		return "cannot create ssl engine for fd"
	case ErrorHandshakeFailed:
		return "ssl handshake failed"
	case ErrorHandshakeTimeout:
		return "ssl handshake timed out"
	case ErrorSocketError:
		return "pending socket error on fd"
	case ErrorRegistryShrink:
		return "cannot shrink registry below a live fd"
	}

	return ""
}
