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
	"fmt"

	"github.com/composefs/go-composefs/internal/disk"
)

// Xattrs is a handle over one inode's validated extended-attribute
// block. It is only valid while its Context is open.
type Xattrs struct {
	ctx    *Context
	base   uint64 // absolute offset of the block
	length uint32
	count  uint16
}

// OpenXattrs resolves an inode's xattr-block reference. ErrNotPresent
// is the normal outcome for inodes without attributes.
func (c *Context) OpenXattrs(ino *Inode) (*Xattrs, error) {
	if ino.raw.XattrsLen == 0 {
		return nil, fmt.Errorf("inode %d has no xattrs: %w", ino.index, ErrNotPresent)
	}
	if ino.raw.XattrsLen < disk.SizeXattrHeader {
		return nil, fmt.Errorf("xattr block of %d bytes: %w", ino.raw.XattrsLen, ErrInvalidFormat)
	}
	if _, err := c.vdata(ino.raw.XattrsOff, uint64(ino.raw.XattrsLen)); err != nil {
		return nil, err
	}
	hdr, err := c.vdata(ino.raw.XattrsOff, disk.SizeXattrHeader)
	if err != nil {
		return nil, err
	}
	return &Xattrs{
		ctx:    c,
		base:   c.sb.VdataOffset + ino.raw.XattrsOff,
		length: ino.raw.XattrsLen,
		count:  disk.DecodeXattrCount(hdr),
	}, nil
}

// forEach walks the block's entries in stored order, never consuming
// more than the block's declared length. fn returning false stops the
// walk early.
func (x *Xattrs) forEach(fn func(name, value []byte) bool) error {
	pos := uint32(disk.SizeXattrHeader)
	for i := uint16(0); i < x.count; i++ {
		if uint64(pos)+disk.SizeXattrEntry > uint64(x.length) {
			return fmt.Errorf("xattr entry %d at %d of %d bytes: %w", i, pos, x.length, ErrInvalidFormat)
		}
		b, err := x.ctx.slice(x.base+uint64(pos), disk.SizeXattrEntry)
		if err != nil {
			return err
		}
		e := disk.DecodeXattrEntry(b)
		pos += disk.SizeXattrEntry
		need := uint64(e.NameLen) + uint64(e.ValueLen)
		if uint64(pos)+need > uint64(x.length) {
			return fmt.Errorf("xattr entry %d of %d+%d bytes at %d: %w", i, e.NameLen, e.ValueLen, pos, ErrInvalidFormat)
		}
		nv, err := x.ctx.slice(x.base+uint64(pos), need)
		if err != nil {
			return err
		}
		pos += uint32(need)
		if !fn(nv[:e.NameLen], nv[e.NameLen:]) {
			return nil
		}
	}
	return nil
}

// ListNames writes the NUL-terminated concatenation of attribute names
// into buf and returns the number of bytes written. When buf is too
// small it returns the required size together with ErrBufferTooSmall
// so the caller can retry with adequate capacity.
func (x *Xattrs) ListNames(buf []byte) (int, error) {
	required := 0
	err := x.forEach(func(name, _ []byte) bool {
		required += len(name) + 1
		return true
	})
	if err != nil {
		return 0, err
	}
	if required > len(buf) {
		return required, fmt.Errorf("need %d bytes, have %d: %w", required, len(buf), ErrBufferTooSmall)
	}
	n := 0
	err = x.forEach(func(name, _ []byte) bool {
		n += copy(buf[n:], name)
		buf[n] = 0
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// GetValue copies the value of the attribute matching name into buf
// and returns the number of bytes copied. A miss is ErrNotFound; an
// undersized buf yields the required size with ErrBufferTooSmall.
func (x *Xattrs) GetValue(name string, buf []byte) (int, error) {
	var (
		n     int
		nerr  error
		found bool
	)
	want := []byte(name)
	err := x.forEach(func(xname, value []byte) bool {
		if !bytes.Equal(xname, want) {
			return true
		}
		found = true
		if len(value) > len(buf) {
			n = len(value)
			nerr = fmt.Errorf("need %d bytes, have %d: %w", len(value), len(buf), ErrBufferTooSmall)
			return false
		}
		n = copy(buf, value)
		return false
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("xattr %q: %w", name, ErrNotFound)
	}
	return n, nerr
}
