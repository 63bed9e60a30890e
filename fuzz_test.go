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

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/composefs/go-composefs/internal/disk"
)

// FuzzContext feeds arbitrary bytes through the full query surface.
// Whatever the input, every operation must return a result or an
// error; panics and out-of-bounds reads are the failures under test.
func FuzzContext(f *testing.F) {
	f.Add([]byte{})
	valid := scenarioImage().build()
	f.Add(valid)
	for _, n := range []int{1, disk.SizeSuperblock - 1, disk.SizeSuperblock, len(valid) - 1} {
		f.Add(valid[:n])
	}
	corrupted := append([]byte(nil), valid...)
	for i := range corrupted {
		corrupted[i] ^= 0x5a
	}
	f.Add(corrupted)

	f.Fuzz(func(t *testing.T, data []byte) {
		ctx, err := NewContext(NewBytesSource(data))
		if err != nil {
			return
		}
		defer ctx.Close()

		fc := fuzz.NewConsumer(data)
		probeIndex, _ := fc.GetUint64()
		probeName, _ := fc.GetString()

		ctx.GetInode(probeIndex)
		for idx := uint64(0); idx < 4; idx++ {
			ino, err := ctx.GetInode(idx)
			if err != nil {
				continue
			}
			exerciseInode(ctx, ino, probeName)
		}

		root, err := ctx.RootInode()
		if err != nil {
			return
		}
		if dir, err := ctx.OpenDirectory(root); err == nil {
			dir.Lookup(probeName)
		}

		// Bounded traversal mirrors the recursion ceiling of the
		// original harness; it must terminate on any input.
		ctx.Walk(4, func(p string, ino *Inode) error {
			exerciseInode(ctx, ino, probeName)
			return nil
		})
	})
}

func exerciseInode(ctx *Context, ino *Inode, probeName string) {
	ctx.PayloadPath(ino, PayloadDigestFallback)

	if x, err := ctx.OpenXattrs(ino); err == nil {
		var names [512]byte
		if n, err := x.ListNames(names[:]); err == nil && n > 0 {
			var value [512]byte
			// Probe the first listed name, as the original harness does.
			first := names[:n]
			for i, c := range first {
				if c == 0 {
					first = first[:i]
					break
				}
			}
			x.GetValue(string(first), value[:])
		}
	}
	if ino.IsDir() {
		if dir, err := ctx.OpenDirectory(ino); err == nil {
			dir.Iterate(0, func(DirEntry) bool { return true })
			dir.Lookup(probeName)
		}
	}
}
