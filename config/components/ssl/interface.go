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

// Package ssl exposes the TLS layer of the server through the
// configuration component lifecycle: the layer configuration is read
// from viper under the component key, the layer is built on Start, and
// a Reload with new certificate material rotates the live certificate
// in place. Sessions on the displaced certificate stay open; the next
// rotation force closes those still predating the current certificate.
package ssl

import (
	libatm "github.com/nabbar/golib/atomic"
	libcfg "github.com/nabbar/golib/config"
	cfgtps "github.com/nabbar/golib/config/types"
	liblog "github.com/nabbar/golib/logger"

	"github.com/codeboten/redis/reactor"
	libssl "github.com/codeboten/redis/ssl"
)

const (
	// ComponentType identifies this component kind.
	ComponentType = "ssl"
)

// CptSSL is the public interface of the TLS layer component.
type CptSSL interface {
	cfgtps.Component

	// RegisterDeps injects the runtime collaborators the layer needs:
	// the event loop and the upstream connection closer. Must run
	// before Start.
	RegisterDeps(rea reactor.Reactor, fcl libssl.FuncForceClose)

	// GetConfig returns the configuration loaded on the last
	// Start/Reload.
	GetConfig() *libssl.Config

	// GetSSL returns the running TLS layer, nil before Start.
	GetSSL() libssl.SSL
}

// New creates a new TLS layer component instance. The returned
// component is not started; register it, then Init and Start are driven
// by the configuration engine.
func New() CptSSL {
	return &componentSSL{
		l: libatm.NewValue[liblog.FuncLog](),
	}
}

// Register registers the given component in the provided configuration
// registry under the specified key.
func Register(cfg libcfg.Config, key string, cpt CptSSL) {
	cfg.ComponentSet(key, cpt)
}

// RegisterNew instantiates a new component and registers it under the
// provided key.
func RegisterNew(cfg libcfg.Config, key string) {
	cfg.ComponentSet(key, New())
}

// Load retrieves a TLS layer component from a component getter. It
// returns nil when the key is not found or holds another kind.
func Load(getCpt cfgtps.FuncCptGet, key string) CptSSL {
	if getCpt == nil {
		return nil
	} else if c := getCpt(key); c == nil {
		return nil
	} else if h, ok := c.(CptSSL); !ok {
		return nil
	} else {
		return h
	}
}
