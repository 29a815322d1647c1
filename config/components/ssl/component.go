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
	"sync"

	libatm "github.com/nabbar/golib/atomic"
	cfgtps "github.com/nabbar/golib/config/types"
	libctx "github.com/nabbar/golib/context"
	liblog "github.com/nabbar/golib/logger"
	montps "github.com/nabbar/golib/monitor/types"
	libver "github.com/nabbar/golib/version"
	libvpr "github.com/nabbar/golib/viper"

	"github.com/codeboten/redis/reactor"
	libssl "github.com/codeboten/redis/ssl"
)

const (
	keyCptKey = iota + 1
	keyCptDependencies
	keyFctViper
	keyFctGetCpt
	keyCptVersion
	keyCptLogger
	keyFctStaBef
	keyFctStaAft
	keyFctRelBef
	keyFctRelAft
	keyFctMonitorPool
)

type componentSSL struct {
	m sync.RWMutex
	x libctx.Config[uint8]
	l libatm.Value[liblog.FuncLog]

	rea reactor.Reactor
	fcl libssl.FuncForceClose

	cfg *libssl.Config
	ssl libssl.SSL
}

func (o *componentSSL) Type() string {
	return ComponentType
}

func (o *componentSSL) Init(key string, ctx libctx.FuncContext, get cfgtps.FuncCptGet, vpr libvpr.FuncViper, vrs libver.Version, log liblog.FuncLog) {
	o.m.Lock()
	defer o.m.Unlock()

	if o.x == nil {
		o.x = libctx.NewConfig[uint8](ctx)
	} else {
		x := libctx.NewConfig[uint8](ctx)
		x.Merge(o.x)
		o.x = x
	}

	o.x.Store(keyCptKey, key)
	o.x.Store(keyFctGetCpt, get)
	o.x.Store(keyFctViper, vpr)
	o.x.Store(keyCptVersion, vrs)
	o.x.Store(keyCptLogger, log)

	if log != nil {
		o.l.Store(log)
	}
}

func (o *componentSSL) RegisterFuncStart(before, after cfgtps.FuncCptEvent) {
	o.x.Store(keyFctStaBef, before)
	o.x.Store(keyFctStaAft, after)
}

func (o *componentSSL) RegisterFuncReload(before, after cfgtps.FuncCptEvent) {
	o.x.Store(keyFctRelBef, before)
	o.x.Store(keyFctRelAft, after)
}

func (o *componentSSL) RegisterMonitorPool(p montps.FuncPool) {
	o.x.Store(keyFctMonitorPool, p)
}

func (o *componentSSL) RegisterDeps(rea reactor.Reactor, fcl libssl.FuncForceClose) {
	o.m.Lock()
	defer o.m.Unlock()

	o.rea = rea
	o.fcl = fcl
}

func (o *componentSSL) IsStarted() bool {
	o.m.RLock()
	defer o.m.RUnlock()

	return o.ssl != nil
}

func (o *componentSSL) IsRunning() bool {
	if !o.IsStarted() {
		return false
	}

	o.m.RLock()
	defer o.m.RUnlock()

	return o.ssl.HealthCheck(o.x.GetContext()) == nil
}

func (o *componentSSL) Start() error {
	return o._run()
}

func (o *componentSSL) Reload() error {
	return o._run()
}

func (o *componentSSL) Stop() {
	o.m.Lock()
	defer o.m.Unlock()

	o.ssl = nil
	return
}

func (o *componentSSL) Dependencies() []string {
	o.m.RLock()
	defer o.m.RUnlock()

	var def = make([]string, 0)

	if o.x == nil {
		return def
	} else if i, l := o.x.Load(keyCptDependencies); !l {
		return def
	} else if v, k := i.([]string); !k {
		return def
	} else if len(v) > 0 {
		return v
	} else {
		return def
	}
}

func (o *componentSSL) SetDependencies(d []string) error {
	o.m.RLock()
	defer o.m.RUnlock()

	if o.x == nil {
		return ErrorComponentNotInitialized.Error(nil)
	} else {
		o.x.Store(keyCptDependencies, d)
		return nil
	}
}

func (o *componentSSL) GetConfig() *libssl.Config {
	o.m.RLock()
	defer o.m.RUnlock()

	return o.cfg
}

func (o *componentSSL) GetSSL() libssl.SSL {
	o.m.RLock()
	defer o.m.RUnlock()

	return o.ssl
}

func (o *componentSSL) _getLogger() liblog.FuncLog {
	return o.l.Load()
}

func (o *componentSSL) _getFctEvt(key uint8) cfgtps.FuncCptEvent {
	if i, l := o.x.Load(key); !l {
		return nil
	} else if v, k := i.(cfgtps.FuncCptEvent); !k {
		return nil
	} else {
		return v
	}
}

func (o *componentSSL) _runFct(fct cfgtps.FuncCptEvent) error {
	if fct != nil {
		return fct(o)
	}

	return nil
}

func (o *componentSSL) _run() error {
	var (
		kb uint8 = keyFctStaBef
		ka uint8 = keyFctStaAft
	)

	if o.IsStarted() {
		kb = keyFctRelBef
		ka = keyFctRelAft
	}

	if err := o._runFct(o._getFctEvt(kb)); err != nil {
		return err
	} else if err = o._runCli(); err != nil {
		return err
	} else if err = o._runFct(o._getFctEvt(ka)); err != nil {
		return err
	}

	return nil
}

func (o *componentSSL) _runCli() error {
	var (
		err error
		cfg *libssl.Config
	)

	if cfg, err = o._getConfig(); err != nil {
		return err
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.ssl != nil && o.ssl.Enabled() && cfg.Enable {
		// live layer: rotate the certificate instead of rebuilding, so
		// established sessions keep their generation semantics
		if e := o._renew(cfg); e != nil {
			return e
		}

		o.cfg = cfg
		return nil
	}

	if o.rea == nil {
		return ErrorComponentNotInitialized.Error(nil)
	}

	if s, e := libssl.New(*cfg, o.rea, o._getLogger(), o.fcl); e != nil {
		if o.ssl != nil {
			return ErrorComponentReload.Error(e)
		}
		return ErrorComponentStart.Error(e)
	} else {
		o.cfg = cfg
		o.ssl = s
	}

	return nil
}
