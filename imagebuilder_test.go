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
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/composefs/go-composefs/internal/disk"
)

// imageBuilder assembles conformant descriptor images for tests. The
// public API stays read-only; this is the producing tool in miniature.
type imageBuilder struct {
	inodes  []disk.Inode
	entries map[uint64][]testDirent
	xattrs  map[uint64][][2]string
	pool    bytes.Buffer
	strings map[string]uint32
	flags   uint32
}

type testDirent struct {
	name  string
	inode uint64
	ftype uint8
}

func newImageBuilder() *imageBuilder {
	b := &imageBuilder{
		entries: map[uint64][]testDirent{},
		xattrs:  map[uint64][][2]string{},
		strings: map[string]uint32{},
	}
	// Inode 0 is the root directory.
	b.addInode(disk.Inode{Mode: disk.StatTypeDir | 0755, Nlink: 1})
	return b
}

func (b *imageBuilder) addInode(ino disk.Inode) uint64 {
	b.inodes = append(b.inodes, ino)
	return uint64(len(b.inodes) - 1)
}

// dir appends a directory inode and returns its index.
func (b *imageBuilder) dir(perm uint32) uint64 {
	return b.addInode(disk.Inode{Mode: disk.StatTypeDir | perm, Nlink: 1})
}

// file appends a regular-file inode and returns its index.
func (b *imageBuilder) file(size uint64, payload string) uint64 {
	ino := disk.Inode{Mode: disk.StatTypeReg | 0644, Nlink: 1, Size: size}
	if payload != "" {
		ino.PayloadOff = uint64(b.addString(payload))
		ino.PayloadLen = uint32(len(payload))
	}
	return b.addInode(ino)
}

// digestFile appends a regular-file inode whose content digest is the
// SHA-256 of content, with no explicit payload path.
func (b *imageBuilder) digestFile(content []byte) uint64 {
	ino := disk.Inode{Mode: disk.StatTypeReg | 0644, Nlink: 1, Size: uint64(len(content))}
	sum := sha256.Sum256(content)
	copy(ino.Digest[:], sum[:])
	return b.addInode(ino)
}

// entry records name in parent's listing, pointing at child.
func (b *imageBuilder) entry(parent uint64, name string, child uint64) {
	b.entries[parent] = append(b.entries[parent], testDirent{
		name:  name,
		inode: child,
		ftype: disk.FileTypeFromMode(b.inodes[child].Mode),
	})
}

// setXattrs attaches (name, value) pairs to the inode at idx.
func (b *imageBuilder) setXattrs(idx uint64, pairs [][2]string) {
	b.xattrs[idx] = pairs
}

func (b *imageBuilder) addString(s string) uint32 {
	if off, ok := b.strings[s]; ok {
		return off
	}
	off := uint32(b.pool.Len())
	b.pool.WriteString(s)
	b.strings[s] = off
	return off
}

// build serializes the image: superblock, inode table, variable data,
// string pool.
func (b *imageBuilder) build() []byte {
	var vdata bytes.Buffer

	for i := range b.inodes {
		idx := uint64(i)
		if entries, ok := b.entries[idx]; ok {
			sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
			off := uint64(vdata.Len())
			var hdr [disk.SizeDirentHeader]byte
			binary.LittleEndian.PutUint32(hdr[:], uint32(len(entries)))
			vdata.Write(hdr[:])
			for _, e := range entries {
				var rec [disk.SizeDirent]byte
				disk.EncodeDirent(rec[:], disk.Dirent{
					Inode:    e.inode,
					NameOff:  b.addString(e.name),
					NameLen:  uint16(len(e.name)),
					FileType: e.ftype,
				})
				vdata.Write(rec[:])
			}
			b.inodes[idx].DirentsOff = off
			b.inodes[idx].DirentsLen = uint32(uint64(vdata.Len()) - off)
		}
		if pairs, ok := b.xattrs[idx]; ok {
			off := uint64(vdata.Len())
			var hdr [disk.SizeXattrHeader]byte
			binary.LittleEndian.PutUint16(hdr[:], uint16(len(pairs)))
			vdata.Write(hdr[:])
			for _, p := range pairs {
				name, value := p[0], p[1]
				var rec [disk.SizeXattrEntry]byte
				binary.LittleEndian.PutUint16(rec[0:2], uint16(len(name)))
				binary.LittleEndian.PutUint16(rec[2:4], uint16(len(value)))
				vdata.Write(rec[:])
				vdata.WriteString(name)
				vdata.WriteString(value)
			}
			b.inodes[idx].XattrsOff = off
			b.inodes[idx].XattrsLen = uint32(uint64(vdata.Len()) - off)
		}
	}

	inodeOff := uint64(disk.SizeSuperblock)
	vdataOff := inodeOff + uint64(len(b.inodes))*disk.SizeInode
	poolOff := vdataOff + uint64(vdata.Len())

	img := make([]byte, poolOff+uint64(b.pool.Len()))
	disk.EncodeSuperblock(img, disk.Superblock{
		Magic:        disk.Magic,
		Version:      disk.Version,
		Flags:        b.flags,
		InodeSize:    disk.SizeInode,
		NInodes:      uint64(len(b.inodes)),
		RootInode:    0,
		InodeOffset:  inodeOff,
		VdataOffset:  vdataOff,
		VdataLen:     uint64(vdata.Len()),
		StringOffset: poolOff,
		StringLen:    uint64(b.pool.Len()),
	})
	for i, ino := range b.inodes {
		disk.EncodeInode(img[inodeOff+uint64(i)*disk.SizeInode:], ino)
	}
	copy(img[vdataOff:], vdata.Bytes())
	copy(img[poolOff:], b.pool.Bytes())
	return img
}

// newTestContext builds the image and opens a Context over it.
func newTestContext(t *testing.T, b *imageBuilder) *Context {
	t.Helper()
	ctx, err := NewContext(NewBytesSource(b.build()))
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

// scenarioImage is the canonical two-entry tree used across tests:
// root containing "a" (empty file) and "b" (directory).
func scenarioImage() *imageBuilder {
	b := newImageBuilder()
	a := b.file(0, "")
	sub := b.dir(0755)
	b.entry(0, "a", a)
	b.entry(0, "b", sub)
	return b
}
