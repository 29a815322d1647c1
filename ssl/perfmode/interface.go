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

// Package perfmode exposes the TLS performance mode tuning knob of a session.
//
// A session is tuned either for low latency (small TLS records flushed
// early) or for high throughput (records filled up to their maximum size
// before leaving the engine). The mode is carried in the server
// configuration and applied to every session at construction time.
//
// The type parses from strings ("low-latency", "high-throughput"), from
// integers (0, 1) and supports JSON, YAML, TOML, Text and CBOR encodings
// plus a viper decoder hook, so it can be used directly in configuration
// structs.
package perfmode

import (
	"math"
	"strings"
)

// PerfMode represents the session performance tuning mode.
type PerfMode int8

const (
	// Unknown is any unrecognized performance mode.
	Unknown PerfMode = -1

	// LowLatency tunes a session to flush small TLS records early.
	LowLatency PerfMode = 0

	// HighThroughput tunes a session to fill TLS records up to their
	// maximum size before handing them to the transport.
	HighThroughput PerfMode = 1
)

// List returns all valid performance modes.
func List() []PerfMode {
	return []PerfMode{
		LowLatency,
		HighThroughput,
	}
}

// ListString returns the string form of all valid performance modes.
func ListString() []string {
	var res = make([]string, 0)

	for _, v := range List() {
		res = append(res, v.String())
	}

	return res
}

// Parse returns the performance mode matching the given string, or
// Unknown if the string does not match any mode.
func Parse(s string) PerfMode {
	s = strings.ToLower(s)
	s = strings.Replace(s, "_", "-", -1)
	s = strings.Replace(s, " ", "-", -1)
	s = strings.TrimSpace(s)

	switch s {
	case LowLatency.String():
		return LowLatency
	case HighThroughput.String():
		return HighThroughput
	default:
		return Unknown
	}
}

func parseBytes(p []byte) PerfMode {
	return Parse(string(p))
}

// ParseInt returns the performance mode matching the given integer, or
// Unknown if the integer does not match any mode.
func ParseInt(i int64) PerfMode {
	if i > math.MaxInt8 || i < math.MinInt8 {
		return Unknown
	}

	switch PerfMode(i) {
	case LowLatency:
		return LowLatency
	case HighThroughput:
		return HighThroughput
	default:
		return Unknown
	}
}
