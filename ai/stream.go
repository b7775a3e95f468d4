// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"iter"
	"sync/atomic"
)

// OnceStream wraps seq so that only the first range over it runs the
// underlying producer. Later ranges yield a single ErrStreamConsumed.
func OnceStream(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	var started atomic.Bool
	return func(yield func(string, error) bool) {
		if !started.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}

// Collect drains a stream into a single string, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var out []byte
	for fragment, err := range seq {
		if err != nil {
			return string(out), err
		}
		out = append(out, fragment...)
	}
	return string(out), nil
}
