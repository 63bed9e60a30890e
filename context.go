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

// Package composefs implements read-only access to composefs
// descriptor images: a compact, content-addressed serialization of a
// directory tree (inodes, sorted directory entries, extended
// attributes and backing-object payload paths) designed to be
// memory-mapped and queried in place.
//
// Every accessor validates the offsets, lengths and counts it is about
// to dereference against the actual source length before touching the
// bytes; nothing encoded inside an image is trusted. A malformed or
// adversarial image produces an error or an empty result, never an
// out-of-bounds access. A Context is immutable after creation and safe
// for concurrent use; handles derived from it must not outlive it.
package composefs

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/composefs/go-composefs/internal/disk"
)

// Context binds a validated superblock to a ByteSource. It is the root
// handle for all queries over one image.
type Context struct {
	src  ByteSource
	size uint64
	sb   disk.Superblock
}

// NewContext validates the fixed-size superblock of src and returns a
// query handle over the image. The returned Context owns src and
// releases it on Close.
func NewContext(src ByteSource) (*Context, error) {
	size := src.Size()
	if size < 0 {
		return nil, fmt.Errorf("negative source size %d: %w", size, ErrInvalidFormat)
	}
	c := &Context{src: src, size: uint64(size)}

	hdr, err := c.slice(0, disk.SizeSuperblock)
	if err != nil {
		return nil, err
	}
	sb := disk.DecodeSuperblock(hdr)
	if sb.Magic != disk.Magic {
		return nil, fmt.Errorf("bad magic %#x: %w", sb.Magic, ErrInvalidFormat)
	}
	if sb.Version != disk.Version {
		return nil, fmt.Errorf("version %d: %w", sb.Version, ErrUnsupportedVersion)
	}
	if sb.InodeSize != disk.SizeInode {
		return nil, fmt.Errorf("inode stride %d, want %d: %w", sb.InodeSize, disk.SizeInode, ErrInvalidFormat)
	}
	if sb.NInodes == 0 {
		return nil, fmt.Errorf("empty inode table: %w", ErrInvalidFormat)
	}
	if sb.NInodes > math.MaxUint64/disk.SizeInode {
		return nil, fmt.Errorf("inode count %d overflows: %w", sb.NInodes, ErrInvalidFormat)
	}
	if err := c.checkRegion(sb.InodeOffset, sb.NInodes*disk.SizeInode); err != nil {
		return nil, fmt.Errorf("inode table: %w", err)
	}
	if err := c.checkRegion(sb.VdataOffset, sb.VdataLen); err != nil {
		return nil, fmt.Errorf("variable data: %w", err)
	}
	if err := c.checkRegion(sb.StringOffset, sb.StringLen); err != nil {
		return nil, fmt.Errorf("string pool: %w", err)
	}
	if sb.RootInode >= sb.NInodes {
		return nil, fmt.Errorf("root inode %d of %d: %w", sb.RootInode, sb.NInodes, ErrInvalidFormat)
	}
	c.sb = sb
	return c, nil
}

// Close releases the byte source. The Context and every handle derived
// from it must not be used afterward.
func (c *Context) Close() error {
	return c.src.Close()
}

// HasACL reports whether the image declares POSIX ACL content.
func (c *Context) HasACL() bool {
	return c.sb.Flags&disk.FlagHasACL != 0
}

// InodeCount returns the number of inode records in the image.
func (c *Context) InodeCount() uint64 {
	return c.sb.NInodes
}

// checkRegion verifies that [off, off+n) lies inside the source,
// guarding against uint64 overflow.
func (c *Context) checkRegion(off, n uint64) error {
	if off > c.size || n > c.size-off {
		return fmt.Errorf("region [%d, %d+%d) beyond %d bytes: %w", off, off, n, c.size, ErrTruncated)
	}
	return nil
}

// slice returns n bytes at off, re-validating bounds against the
// source length regardless of what earlier validation established.
// Sources exposing their backing bytes are sliced without copying.
func (c *Context) slice(off, n uint64) ([]byte, error) {
	if err := c.checkRegion(off, n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if s, ok := c.src.(sliceable); ok {
		return s.Bytes()[off : off+n], nil
	}
	buf := make([]byte, n)
	// io.ReaderAt may return io.EOF alongside a complete read ending at
	// the end of the source.
	if rn, err := c.src.ReadAt(buf, int64(off)); err != nil && !(errors.Is(err, io.EOF) && rn == len(buf)) {
		return nil, fmt.Errorf("read image at %d: %w", off, err)
	}
	return buf, nil
}

// vdata returns n bytes at offset off within the variable-data region,
// after checking the reference against the region's declared bounds.
func (c *Context) vdata(off uint64, n uint64) ([]byte, error) {
	if off > c.sb.VdataLen || n > c.sb.VdataLen-off {
		return nil, fmt.Errorf("vdata reference [%d, %d+%d) beyond %d bytes: %w", off, off, n, c.sb.VdataLen, ErrInvalidFormat)
	}
	return c.slice(c.sb.VdataOffset+off, n)
}

// pool returns n bytes at offset off within the string pool, after
// checking the reference against the pool's declared bounds.
func (c *Context) pool(off uint64, n uint64) ([]byte, error) {
	if off > c.sb.StringLen || n > c.sb.StringLen-off {
		return nil, fmt.Errorf("pool reference [%d, %d+%d) beyond %d bytes: %w", off, off, n, c.sb.StringLen, ErrInvalidFormat)
	}
	return c.slice(c.sb.StringOffset+off, n)
}
