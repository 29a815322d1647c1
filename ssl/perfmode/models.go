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

package perfmode

import (
	"reflect"

	libcbr "github.com/fxamacker/cbor/v2"
	libmap "github.com/go-viper/mapstructure/v2"
)

func cborMarshal(v interface{}) ([]byte, error) {
	return libcbr.Marshal(v)
}

func cborUnmarshal(p []byte, v interface{}) error {
	return libcbr.Unmarshal(p, v)
}

// Check returns true if the performance mode is a valid, known mode.
func (v PerfMode) Check() bool {
	switch v {
	case LowLatency:
		return true
	case HighThroughput:
		return true
	default:
		return false
	}
}

// ViperDecoderHook allows a PerfMode field to be decoded from its string
// form when unmarshalling a configuration with viper / mapstructure.
func ViperDecoderHook() libmap.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		var (
			z = Unknown
			t string
			k bool
		)

		// Check if the data type matches the expected one
		if from.Kind() != reflect.String {
			return data, nil
		} else if t, k = data.(string); !k {
			return data, nil
		}

		// Check if the target type matches the expected one
		if reflect.TypeOf(z) != to {
			return data, nil
		}

		// Format/decode/parse the data and return the new value
		if e := z.unmarshall([]byte(t)); e != nil {
			return data, nil
		} else if z == Unknown {
			return data, nil
		} else {
			return z, nil
		}
	}
}
