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

package mmapio

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageAlignRoundsUpToPageBoundary(t *testing.T) {
	p := int64(PageSize())

	require.Equal(t, p, PageAlign(1))
	require.Equal(t, p, PageAlign(p))
	require.Equal(t, 2*p, PageAlign(p+1))
	require.Equal(t, int64(0), PageAlign(0))
}

func TestPageFloorRoundsDownToPageBoundary(t *testing.T) {
	p := int64(PageSize())

	require.Equal(t, int64(0), PageFloor(1))
	require.Equal(t, p, PageFloor(p))
	require.Equal(t, p, PageFloor(p+1))
}

func TestMapAndUnmapRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mmapio")
	require.NoError(t, err)
	defer f.Close()

	size := PageSize()
	require.NoError(t, f.Truncate(int64(size)))

	b, err := Map(int(f.Fd()), 0, size, ProtRead)
	require.NoError(t, err)
	require.Len(t, b, size)

	require.NoError(t, Unmap(b))
}

func TestIsENOMEMDetectsWrappedErrno(t *testing.T) {
	wrapped := wrapForTest(syscall.ENOMEM)
	require.True(t, IsENOMEM(wrapped))
	require.False(t, IsENOMEM(wrapForTest(syscall.EIO)))
	require.False(t, IsENOMEM(nil))
}

func wrapForTest(errno syscall.Errno) error {
	return &testWrapper{err: errno}
}

type testWrapper struct{ err error }

func (w *testWrapper) Error() string { return w.err.Error() }
func (w *testWrapper) Unwrap() error { return w.err }
