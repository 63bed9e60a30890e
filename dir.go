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

// DirEntry is one (name, inode, type) triple of a directory listing.
type DirEntry struct {
	// Name is the entry's file name, validated against the string
	// pool: non-empty, no NUL, no '/'.
	Name string
	// Inode is the index of the entry's inode record.
	Inode uint64
	// FileType is the DT_* style type hint stored with the entry.
	FileType uint8
}

// IsDir reports whether the entry's type hint marks a directory.
func (e DirEntry) IsDir() bool { return e.FileType == disk.FileTypeDir }

// Directory is a handle over one directory inode's validated entry
// array. It captures the checked range and count, not the inode, and
// is only valid while its Context is open.
type Directory struct {
	ctx   *Context
	base  uint64 // absolute offset of the first dirent
	count uint32
}

// OpenDirectory resolves and bounds-checks the entry array of a
// directory inode. A zero-length reference yields an empty directory.
func (c *Context) OpenDirectory(ino *Inode) (*Directory, error) {
	if !ino.IsDir() {
		return nil, fmt.Errorf("inode %d: %w", ino.index, ErrNotADirectory)
	}
	if ino.raw.DirentsLen == 0 {
		return &Directory{ctx: c}, nil
	}
	if ino.raw.DirentsLen < disk.SizeDirentHeader {
		return nil, fmt.Errorf("dirent block of %d bytes: %w", ino.raw.DirentsLen, ErrInvalidFormat)
	}
	hdr, err := c.vdata(ino.raw.DirentsOff, disk.SizeDirentHeader)
	if err != nil {
		return nil, err
	}
	count := disk.DecodeDirentCount(hdr)
	need := uint64(disk.SizeDirentHeader) + uint64(count)*disk.SizeDirent
	if need > uint64(ino.raw.DirentsLen) {
		return nil, fmt.Errorf("%d entries in %d bytes: %w", count, ino.raw.DirentsLen, ErrInvalidFormat)
	}
	// Re-check the full table against the vdata region; the header
	// length field itself is untrusted.
	if _, err := c.vdata(ino.raw.DirentsOff, need); err != nil {
		return nil, err
	}
	return &Directory{
		ctx:   c,
		base:  c.sb.VdataOffset + ino.raw.DirentsOff + disk.SizeDirentHeader,
		count: count,
	}, nil
}

// Entries returns the number of entries in the directory.
func (d *Directory) Entries() uint32 { return d.count }

// entryAt decodes the i'th dirent. The byte range is bounds-checked
// independently of any earlier probe.
func (d *Directory) entryAt(i uint32) (disk.Dirent, error) {
	if i >= d.count {
		return disk.Dirent{}, fmt.Errorf("entry %d of %d: %w", i, d.count, ErrOutOfRange)
	}
	b, err := d.ctx.slice(d.base+uint64(i)*disk.SizeDirent, disk.SizeDirent)
	if err != nil {
		return disk.Dirent{}, err
	}
	return disk.DecodeDirent(b), nil
}

// entryName resolves and validates a dirent's name from the string
// pool. Invalid references and names are reported, not dereferenced.
func (d *Directory) entryName(de disk.Dirent) ([]byte, error) {
	if de.NameLen == 0 {
		return nil, fmt.Errorf("empty entry name: %w", ErrInvalidFormat)
	}
	name, err := d.ctx.pool(uint64(de.NameOff), uint64(de.NameLen))
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(name, 0) >= 0 || bytes.IndexByte(name, '/') >= 0 {
		return nil, fmt.Errorf("entry name contains NUL or '/': %w", ErrInvalidFormat)
	}
	return name, nil
}

// Iterate calls fn for each entry in stored order starting at the
// cursor start, stopping early when fn returns false. A cursor equal
// to the entry count yields an empty continuation; one beyond it is an
// error. Entries whose names fail validation are skipped so one
// corrupt entry cannot abort the rest of the listing.
func (d *Directory) Iterate(start uint32, fn func(DirEntry) bool) error {
	if start > d.count {
		return fmt.Errorf("cursor %d of %d: %w", start, d.count, ErrOutOfRange)
	}
	for i := start; i < d.count; i++ {
		de, err := d.entryAt(i)
		if err != nil {
			return err
		}
		name, err := d.entryName(de)
		if err != nil {
			continue
		}
		if !fn(DirEntry{Name: string(name), Inode: de.Inode, FileType: de.FileType}) {
			return nil
		}
	}
	return nil
}

// Lookup binary-searches the sorted entry array for name and returns
// the matching inode index, or ErrNotFound. Every probe re-validates
// its own bounds; if the image violates the sort invariant the result
// is unspecified but the search stays in bounds and terminates.
func (d *Directory) Lookup(name string) (uint64, error) {
	want := []byte(name)
	lo, hi := uint32(0), d.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		de, err := d.entryAt(mid)
		if err != nil {
			return 0, err
		}
		probe, err := d.entryName(de)
		if err != nil {
			// Cannot order against a corrupt entry; report a miss
			// rather than walking adjacent memory.
			return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
		}
		switch bytes.Compare(probe, want) {
		case 0:
			return de.Inode, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// LookupInode is Lookup followed by GetInode.
func (d *Directory) LookupInode(name string) (*Inode, error) {
	idx, err := d.Lookup(name)
	if err != nil {
		return nil, err
	}
	return d.ctx.GetInode(idx)
}
