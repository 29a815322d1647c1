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
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libmap "github.com/go-viper/mapstructure/v2"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"

	"github.com/codeboten/redis/ssl/perfmode"
)

const (
	// DefaultMaxClients sizes the registry when the configuration does
	// not say otherwise.
	DefaultMaxClients = 10000

	// RegistryHeadroom is added on top of the configured client limit
	// to cover listening sockets, the cluster bus and replication links.
	RegistryHeadroom = 32
)

// Config is the TLS layer configuration.
type Config struct {
	// Enable turns the TLS layer on. When false every I/O operation is
	// a passthrough to the plain socket.
	Enable bool `mapstructure:"enable_ssl" json:"enable_ssl" yaml:"enable_ssl" toml:"enable_ssl"`

	// CertificateFile is the PEM certificate chain presented to peers.
	CertificateFile string `mapstructure:"certificate_file" json:"certificate_file" yaml:"certificate_file" toml:"certificate_file" validate:"required_with=Enable"`

	// PrivateKeyFile is the PEM private key of the certificate.
	PrivateKeyFile string `mapstructure:"private_key_file" json:"private_key_file" yaml:"private_key_file" toml:"private_key_file" validate:"required_with=Enable"`

	// DHParamsFile is the optional PEM DH parameters file.
	DHParamsFile string `mapstructure:"dh_params_file" json:"dh_params_file" yaml:"dh_params_file" toml:"dh_params_file"`

	// RootCACertsPath is the directory holding the trust roots used to
	// verify peer certificates on outgoing connections.
	RootCACertsPath string `mapstructure:"root_ca_certs_path" json:"root_ca_certs_path" yaml:"root_ca_certs_path" toml:"root_ca_certs_path"`

	// CipherPrefs is the opaque cipher preference string handed to the
	// engine.
	CipherPrefs string `mapstructure:"cipher_prefs" json:"cipher_prefs" yaml:"cipher_prefs" toml:"cipher_prefs"`

	// PerformanceMode tunes record sizing of every session.
	PerformanceMode perfmode.PerfMode `mapstructure:"ssl_performance_mode" json:"ssl_performance_mode" yaml:"ssl_performance_mode" toml:"ssl_performance_mode"`

	// MaxClients bounds the registry; the registry itself is sized
	// MaxClients + RegistryHeadroom.
	MaxClients int `mapstructure:"max_clients" json:"max_clients" yaml:"max_clients" toml:"max_clients" validate:"gte=0"`

	// SyncTimeout bounds each wait round of a synchronous handshake.
	SyncTimeout libdur.Duration `mapstructure:"sync_timeout" json:"sync_timeout" yaml:"sync_timeout" toml:"sync_timeout"`
}

// Validate checks the configuration coherence.
func (c *Config) Validate() liberr.Error {
	err := ErrorValidatorError.Error(nil)

	if er := libval.New().Struct(c); er != nil {
		if e, ok := er.(*libval.InvalidValidationError); ok {
			err.Add(e)
		}

		for _, e := range er.(libval.ValidationErrors) {
			//nolint goerr113
			err.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.StructNamespace(), e.ActualTag()))
		}
	}

	if c.Enable && c.PerformanceMode != perfmode.Unknown && !c.PerformanceMode.Check() {
		//nolint goerr113
		err.Add(fmt.Errorf("config field 'PerformanceMode' is not a valid performance mode"))
	}

	if err.HasParent() {
		return err
	}

	return nil
}

func (c *Config) maxClients() int {
	if c.MaxClients > 0 {
		return c.MaxClients
	}

	return DefaultMaxClients
}

// RegistrySize returns the session registry size for this
// configuration.
func (c *Config) RegistrySize() int {
	return c.maxClients() + RegistryHeadroom
}

// ViperDecoderHook decodes the enum fields of Config when unmarshalling
// with viper / mapstructure.
func ViperDecoderHook() libmap.DecodeHookFuncType {
	return perfmode.ViperDecoderHook()
}
