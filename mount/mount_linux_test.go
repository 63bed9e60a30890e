/*
   Copyright The composefs Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package mount

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	composefs "github.com/composefs/go-composefs"
	"github.com/composefs/go-composefs/internal/disk"
)

func writeImageHeader(t *testing.T, magic uint32) string {
	t.Helper()
	var hdr [disk.SizeImageHeader]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], 1)
	path := filepath.Join(t.TempDir(), "image.cfs")
	require.NoError(t, os.WriteFile(path, hdr[:], 0644))
	return path
}

// Header routing happens before any privileged operation, so the
// rejection paths are testable without root.
func TestMountRejectsBadMagic(t *testing.T) {
	path := writeImageHeader(t, disk.Magic)
	err := Mount(context.Background(), path, t.TempDir(), Options{ObjDirs: []string{t.TempDir()}})
	require.ErrorIs(t, err, composefs.ErrInvalidFormat)
}

func TestMountRejectsShortImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.cfs")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))
	err := Mount(context.Background(), path, t.TempDir(), Options{ObjDirs: []string{t.TempDir()}})
	require.ErrorIs(t, err, composefs.ErrTruncated)
}

// A header read that fails for a reason other than hitting end of file
// must not be reported as a truncated image.
func TestMountReadErrorNotTruncation(t *testing.T) {
	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()

	err = MountFile(context.Background(), dir, dir.Name(), t.TempDir(),
		Options{ObjDirs: []string{t.TempDir()}})
	require.Error(t, err)
	require.NotErrorIs(t, err, composefs.ErrTruncated)
}

func TestMountRejectsInvalidOptions(t *testing.T) {
	path := writeImageHeader(t, disk.ImageMagic)
	err := Mount(context.Background(), path, t.TempDir(), Options{})
	require.Error(t, err)
}
