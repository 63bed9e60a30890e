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
	"fmt"
	"io/fs"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/composefs/go-composefs/internal/disk"
)

// Inode is a transient read-only view of one inode record. It carries
// no reference back to the image bytes; callers may retain or discard
// it freely within the owning Context's lifetime.
type Inode struct {
	index uint64
	raw   disk.Inode
}

// GetInode decodes the inode record at index. The byte range is
// re-checked against the source even though the superblock already
// validated the table, because the superblock itself may lie.
func (c *Context) GetInode(index uint64) (*Inode, error) {
	if index >= c.sb.NInodes {
		return nil, fmt.Errorf("inode %d of %d: %w", index, c.sb.NInodes, ErrOutOfRange)
	}
	b, err := c.slice(c.sb.InodeOffset+index*disk.SizeInode, disk.SizeInode)
	if err != nil {
		return nil, err
	}
	return &Inode{index: index, raw: disk.DecodeInode(b)}, nil
}

// RootInode returns the image's root directory inode.
func (c *Context) RootInode() (*Inode, error) {
	ino, err := c.GetInode(c.sb.RootInode)
	if err != nil {
		return nil, err
	}
	if !ino.IsDir() {
		return nil, fmt.Errorf("root inode %d: %w", c.sb.RootInode, ErrNotADirectory)
	}
	return ino, nil
}

// Index returns the inode's position in the inode table.
func (i *Inode) Index() uint64 { return i.index }

// Mode returns the raw stat mode bits.
func (i *Inode) Mode() uint32 { return i.raw.Mode }

// FileMode returns the mode translated to a Go fs.FileMode.
func (i *Inode) FileMode() fs.FileMode { return disk.ModeToFileMode(i.raw.Mode) }

func (i *Inode) IsDir() bool     { return i.raw.Mode&disk.StatTypeMask == disk.StatTypeDir }
func (i *Inode) IsRegular() bool { return i.raw.Mode&disk.StatTypeMask == disk.StatTypeReg }
func (i *Inode) IsSymlink() bool { return i.raw.Mode&disk.StatTypeMask == disk.StatTypeSymlink }

// Size returns the file size in bytes.
func (i *Inode) Size() int64 { return int64(i.raw.Size) }

func (i *Inode) UID() uint32   { return i.raw.UID }
func (i *Inode) GID() uint32   { return i.raw.GID }
func (i *Inode) Nlink() uint32 { return i.raw.Nlink }
func (i *Inode) Rdev() uint32  { return i.raw.Rdev }

// ModTime returns the modification timestamp.
func (i *Inode) ModTime() time.Time {
	return time.Unix(i.raw.MtimeSec, int64(i.raw.MtimeNsec))
}

// HasDigest reports whether the inode carries a content digest.
func (i *Inode) HasDigest() bool {
	return i.raw.Digest != [disk.DigestSize]byte{}
}

// Digest returns the inode's content digest, or the empty digest when
// none is stored.
func (i *Inode) Digest() digest.Digest {
	if !i.HasDigest() {
		return ""
	}
	return digest.NewDigestFromBytes(digest.SHA256, i.raw.Digest[:])
}
