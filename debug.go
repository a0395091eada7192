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

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var gDefaultLogger *logrus.Entry
var gDefaultLoggerOnce sync.Once

// initDefaultLogger builds the logger used by caches created without
// WithLogger. It defaults to warn level and stderr, the generalization of
// the teacher's "-fuse.debug" gate: unlike a single global FUSE connection,
// a process may own many independent caches (spec §5), so the level lives
// on a per-cache *logrus.Entry rather than behind one global flag.
func initDefaultLogger() {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	gDefaultLogger = l.WithField("component", "mmapcache")
}

func defaultLogger() *logrus.Entry {
	gDefaultLoggerOnce.Do(initDefaultLogger)
	return gDefaultLogger
}
