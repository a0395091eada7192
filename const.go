// Copyright 2015 Google Inc. All Rights Reserved.
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

package mmapcache

// Compile-time configuration constants (spec §6).
const (
	// DefaultWindowSize is the default window width used in production:
	// 8 MiB, chosen to amortize mmap cost and bias toward sequential
	// forward re-use.
	DefaultWindowSize = 8 * 1024 * 1024

	// WindowsMin is the soft floor below which the allocate path prefers
	// growing the live window count over recycling the LRU tail.
	WindowsMin = 64

	// MaxContexts bounds the number of stable cursor slots a Cache keeps.
	MaxContexts = 16
)
