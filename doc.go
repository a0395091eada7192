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

// Package mmapcache implements a memory-mapped window cache for random
// access into large, append-only log files.
//
// The primary elements of interest are:
//
//   - Cache, the top-level container for registered files, context slots,
//     and the LRU list of unused windows.
//
//   - FileHandle, returned by Cache.AddFD, representing one registered file
//     descriptor.
//
//   - Cache.Get, which maps a byte range of a registered file and returns a
//     pointer into the mapping, reusing an existing window when possible.
//
// The cache is not safe for concurrent use by multiple goroutines; a single
// Cache is meant to be owned by one goroutine at a time, the same way a
// single journal reader owns its mmap cache. Callers that want concurrent
// access must serialize it themselves.
package mmapcache
