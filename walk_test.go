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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedImage() *imageBuilder {
	b := newImageBuilder()
	usr := b.dir(0755)
	bin := b.dir(0755)
	ls := b.file(100, "")
	etc := b.dir(0755)
	passwd := b.file(50, "")
	b.entry(0, "usr", usr)
	b.entry(usr, "bin", bin)
	b.entry(bin, "ls", ls)
	b.entry(0, "etc", etc)
	b.entry(etc, "passwd", passwd)
	return b
}

func TestWalk(t *testing.T) {
	ctx := newTestContext(t, nestedImage())

	var paths []string
	require.NoError(t, ctx.Walk(16, func(p string, ino *Inode) error {
		paths = append(paths, p)
		return nil
	}))
	assert.Equal(t, []string{".", "etc", "etc/passwd", "usr", "usr/bin", "usr/bin/ls"}, paths)
}

func TestWalkDepthExceeded(t *testing.T) {
	ctx := newTestContext(t, nestedImage())
	// usr/bin sits at depth 2; a bound of 2 cannot enter it.
	err := ctx.Walk(2, func(string, *Inode) error { return nil })
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestWalkSkipDir(t *testing.T) {
	ctx := newTestContext(t, nestedImage())

	var paths []string
	require.NoError(t, ctx.Walk(16, func(p string, ino *Inode) error {
		paths = append(paths, p)
		if p == "usr" {
			return SkipDir
		}
		return nil
	}))
	assert.Equal(t, []string{".", "etc", "etc/passwd", "usr"}, paths)
}

// A directory entry pointing back at the root creates an unbounded
// tree; the walk must terminate at the depth bound instead of
// recursing forever.
func TestWalkSelfReferential(t *testing.T) {
	b := newImageBuilder()
	b.entry(0, "loop", 0)
	ctx := newTestContext(t, b)

	var visits int
	err := ctx.Walk(8, func(string, *Inode) error {
		visits++
		return nil
	})
	assert.ErrorIs(t, err, ErrDepthExceeded)
	// One visit per level: the root plus each descent into "loop".
	assert.LessOrEqual(t, visits, 9)
}

func TestWalkCallbackError(t *testing.T) {
	ctx := newTestContext(t, nestedImage())
	boom := assert.AnError
	err := ctx.Walk(16, func(p string, ino *Inode) error {
		if p == "etc/passwd" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
