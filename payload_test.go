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

package composefs

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/composefs/go-composefs/internal/disk"
)

func TestPayloadPathExplicit(t *testing.T) {
	b := newImageBuilder()
	f := b.file(10, "12/3456789abcdef")
	b.entry(0, "f", f)
	ctx := newTestContext(t, b)

	ino, err := ctx.GetInode(f)
	require.NoError(t, err)
	p, err := ctx.PayloadPath(ino, 0)
	require.NoError(t, err)
	assert.Equal(t, "12/3456789abcdef", p)
}

func TestPayloadPathDigestFallback(t *testing.T) {
	content := []byte("some file content")
	b := newImageBuilder()
	f := b.digestFile(content)
	b.entry(0, "f", f)
	ctx := newTestContext(t, b)

	ino, err := ctx.GetInode(f)
	require.NoError(t, err)

	// Without the fallback flag there is no path.
	_, err = ctx.PayloadPath(ino, 0)
	assert.ErrorIs(t, err, ErrNotPresent)

	p, err := ctx.PayloadPath(ino, PayloadDigestFallback)
	require.NoError(t, err)
	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])
	assert.Equal(t, want[:2]+"/"+want[2:], p)
}

func TestPayloadPathNotARegularFile(t *testing.T) {
	ctx := newTestContext(t, scenarioImage())
	root, err := ctx.RootInode()
	require.NoError(t, err)
	_, err = ctx.PayloadPath(root, PayloadDigestFallback)
	assert.ErrorIs(t, err, ErrNotARegularFile)
}

func TestPayloadPathNoPathNoDigest(t *testing.T) {
	b := newImageBuilder()
	f := b.file(5, "")
	b.entry(0, "f", f)
	ctx := newTestContext(t, b)

	ino, err := ctx.GetInode(f)
	require.NoError(t, err)
	_, err = ctx.PayloadPath(ino, PayloadDigestFallback)
	assert.ErrorIs(t, err, ErrNotPresent)
}

func TestPayloadPathOutOfBounds(t *testing.T) {
	b := newImageBuilder()
	f := b.file(5, "objects/a")
	b.entry(0, "f", f)
	img := b.build()

	// Push the payload reference outside the string pool.
	sb := disk.DecodeSuperblock(img)
	inoOff := sb.InodeOffset + disk.SizeInode
	binary.LittleEndian.PutUint64(img[inoOff+72:inoOff+80], 1<<32)

	ctx, err := NewContext(NewBytesSource(img))
	require.NoError(t, err)
	defer ctx.Close()

	ino, err := ctx.GetInode(1)
	require.NoError(t, err)
	_, err = ctx.PayloadPath(ino, 0)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestPayloadPathRejectsAbsolute(t *testing.T) {
	b := newImageBuilder()
	f := b.file(5, "/etc/passwd")
	b.entry(0, "f", f)
	ctx := newTestContext(t, b)

	ino, err := ctx.GetInode(1)
	require.NoError(t, err)
	_, err = ctx.PayloadPath(ino, 0)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
