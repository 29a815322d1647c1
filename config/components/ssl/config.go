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
	"os"

	libvpr "github.com/nabbar/golib/viper"
	spfcbr "github.com/spf13/cobra"
	spfvbr "github.com/spf13/viper"

	libssl "github.com/codeboten/redis/ssl"
)

func (o *componentSSL) _getKey() string {
	o.m.RLock()
	defer o.m.RUnlock()

	if i, l := o.x.Load(keyCptKey); !l {
		return ""
	} else if v, k := i.(string); !k {
		return ""
	} else {
		return v
	}
}

func (o *componentSSL) _getFctVpr() libvpr.FuncViper {
	o.m.RLock()
	defer o.m.RUnlock()

	if i, l := o.x.Load(keyFctViper); !l {
		return nil
	} else if f, k := i.(libvpr.FuncViper); !k {
		return nil
	} else {
		return f
	}
}

func (o *componentSSL) _getViper() libvpr.Viper {
	if f := o._getFctVpr(); f == nil {
		return nil
	} else if v := f(); v == nil {
		return nil
	} else {
		return v
	}
}

func (o *componentSSL) _getSPFViper() *spfvbr.Viper {
	if f := o._getViper(); f == nil {
		return nil
	} else if v := f.Viper(); v == nil {
		return nil
	} else {
		return v
	}
}

func (o *componentSSL) _getConfig() (*libssl.Config, error) {
	var (
		key string
		cfg libssl.Config
		vpr libvpr.Viper
	)

	if vpr = o._getViper(); vpr == nil {
		return nil, ErrorComponentNotInitialized.Error(nil)
	} else if key = o._getKey(); len(key) < 1 {
		return nil, ErrorComponentNotInitialized.Error(nil)
	} else if !vpr.Viper().IsSet(key) {
		return nil, ErrorParamInvalid.Error(nil)
	} else if e := vpr.UnmarshalKey(key, &cfg); e != nil {
		return nil, ErrorParamInvalid.Error(e)
	}

	if err := cfg.Validate(); err != nil {
		return nil, ErrorConfigInvalid.Error(err)
	}

	return &cfg, nil
}

// _renew rotates the live certificate from the configured files.
// Caller holds the write lock.
func (o *componentSSL) _renew(cfg *libssl.Config) error {
	var (
		e   error
		crt []byte
		key []byte
	)

	if crt, e = os.ReadFile(cfg.CertificateFile); e != nil {
		return ErrorComponentReload.Error(e)
	}

	if key, e = os.ReadFile(cfg.PrivateKeyFile); e != nil {
		return ErrorComponentReload.Error(e)
	}

	if err := o.ssl.Renew(string(crt), string(key), cfg.CertificateFile, cfg.PrivateKeyFile); err != nil {
		return ErrorComponentReload.Error(err)
	}

	return nil
}

func (o *componentSSL) RegisterFlag(Command *spfcbr.Command) error {
	var (
		key string
		vpr *spfvbr.Viper
		err error
	)

	if vpr = o._getSPFViper(); vpr == nil {
		return ErrorComponentNotInitialized.Error(nil)
	} else if key = o._getKey(); len(key) < 1 {
		return ErrorComponentNotInitialized.Error(nil)
	}

	_ = Command.PersistentFlags().Bool(key+".enable_ssl", false, "enable the TLS layer on every traffic class")
	_ = Command.PersistentFlags().String(key+".certificate_file", "", "path of the PEM certificate chain presented to peers")
	_ = Command.PersistentFlags().String(key+".private_key_file", "", "path of the PEM private key of the certificate")
	_ = Command.PersistentFlags().String(key+".dh_params_file", "", "path of the PEM DH parameters")
	_ = Command.PersistentFlags().String(key+".root_ca_certs_path", "", "directory of the trust roots used for peer verification")
	_ = Command.PersistentFlags().String(key+".cipher_prefs", "", "cipher preference string handed to the TLS engine")
	_ = Command.PersistentFlags().String(key+".ssl_performance_mode", "low-latency", "session tuning: low-latency or high-throughput")

	if err = vpr.BindPFlag(key+".enable_ssl", Command.PersistentFlags().Lookup(key+".enable_ssl")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".certificate_file", Command.PersistentFlags().Lookup(key+".certificate_file")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".private_key_file", Command.PersistentFlags().Lookup(key+".private_key_file")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".dh_params_file", Command.PersistentFlags().Lookup(key+".dh_params_file")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".root_ca_certs_path", Command.PersistentFlags().Lookup(key+".root_ca_certs_path")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".cipher_prefs", Command.PersistentFlags().Lookup(key+".cipher_prefs")); err != nil {
		return err
	} else if err = vpr.BindPFlag(key+".ssl_performance_mode", Command.PersistentFlags().Lookup(key+".ssl_performance_mode")); err != nil {
		return err
	}

	return nil
}
