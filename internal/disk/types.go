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

// Package disk defines the on-disk layout of composefs images. All
// multi-byte fields are little-endian and are decoded at explicit
// offsets; nothing in this package assumes the backing buffer is
// aligned or trustworthy beyond its length.
package disk

import "encoding/binary"

const (
	// Magic identifies a composefs descriptor image, the format decoded
	// by the reader.
	Magic = 0xc078629a

	// ImageMagic identifies an EROFS-flavored composefs image. Only the
	// fixed-size prologue is parsed in userspace; the filesystem proper
	// is decoded by the kernel after mounting.
	ImageMagic = 0xd078629a

	// Version is the descriptor format version this package understands.
	Version = 1

	SizeSuperblock   = 88
	SizeImageHeader  = 32
	SizeInode        = 120
	SizeDirentHeader = 4
	SizeDirent       = 16
	SizeXattrHeader  = 4
	SizeXattrEntry   = 4
)

// Superblock flag bits.
const (
	FlagHasACL = 1 << 0
)

// Superblock is the fixed-size prologue of a descriptor image.
type Superblock struct {
	Magic        uint32
	Version      uint32
	Flags        uint32
	InodeSize    uint32
	NInodes      uint64
	RootInode    uint64
	InodeOffset  uint64
	VdataOffset  uint64
	VdataLen     uint64
	StringOffset uint64
	StringLen    uint64
}

// DecodeSuperblock decodes the superblock from b. b must hold at least
// SizeSuperblock bytes.
func DecodeSuperblock(b []byte) Superblock {
	_ = b[SizeSuperblock-1]
	return Superblock{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		Flags:        binary.LittleEndian.Uint32(b[8:12]),
		InodeSize:    binary.LittleEndian.Uint32(b[12:16]),
		NInodes:      binary.LittleEndian.Uint64(b[16:24]),
		RootInode:    binary.LittleEndian.Uint64(b[24:32]),
		InodeOffset:  binary.LittleEndian.Uint64(b[32:40]),
		VdataOffset:  binary.LittleEndian.Uint64(b[40:48]),
		VdataLen:     binary.LittleEndian.Uint64(b[48:56]),
		StringOffset: binary.LittleEndian.Uint64(b[56:64]),
		StringLen:    binary.LittleEndian.Uint64(b[64:72]),
	}
}

// EncodeSuperblock writes sb into b. b must hold at least SizeSuperblock
// bytes. The encoder exists for tests and tooling; the reader never
// writes images.
func EncodeSuperblock(b []byte, sb Superblock) {
	_ = b[SizeSuperblock-1]
	binary.LittleEndian.PutUint32(b[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(b[4:8], sb.Version)
	binary.LittleEndian.PutUint32(b[8:12], sb.Flags)
	binary.LittleEndian.PutUint32(b[12:16], sb.InodeSize)
	binary.LittleEndian.PutUint64(b[16:24], sb.NInodes)
	binary.LittleEndian.PutUint64(b[24:32], sb.RootInode)
	binary.LittleEndian.PutUint64(b[32:40], sb.InodeOffset)
	binary.LittleEndian.PutUint64(b[40:48], sb.VdataOffset)
	binary.LittleEndian.PutUint64(b[48:56], sb.VdataLen)
	binary.LittleEndian.PutUint64(b[56:64], sb.StringOffset)
	binary.LittleEndian.PutUint64(b[64:72], sb.StringLen)
}

// ImageHeader is the fixed-size prologue of an EROFS-flavored image,
// shared with the kernel-side consumer. Mount routing reads only this.
type ImageHeader struct {
	Magic     uint32
	Version   uint32
	Flags     uint32
	FsVersion uint32
}

// DecodeImageHeader decodes the image header from b. b must hold at
// least SizeImageHeader bytes.
func DecodeImageHeader(b []byte) ImageHeader {
	_ = b[SizeImageHeader-1]
	return ImageHeader{
		Magic:     binary.LittleEndian.Uint32(b[0:4]),
		Version:   binary.LittleEndian.Uint32(b[4:8]),
		Flags:     binary.LittleEndian.Uint32(b[8:12]),
		FsVersion: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// Inode is one fixed-stride record in the inode table. The Dirents
// reference is meaningful for directories, Payload and Digest for
// regular files, Xattrs for any inode.
type Inode struct {
	Mode       uint32
	Nlink      uint32
	UID        uint32
	GID        uint32
	Rdev       uint32
	Size       uint64
	MtimeSec   int64
	MtimeNsec  uint32
	DirentsOff uint64
	DirentsLen uint32
	XattrsLen  uint32
	XattrsOff  uint64
	PayloadOff uint64
	PayloadLen uint32
	Digest     [DigestSize]byte
}

// DigestSize is the width of the per-inode content digest (SHA-256).
const DigestSize = 32

// DecodeInode decodes one inode record from b. b must hold at least
// SizeInode bytes.
func DecodeInode(b []byte) Inode {
	_ = b[SizeInode-1]
	ino := Inode{
		Mode:       binary.LittleEndian.Uint32(b[0:4]),
		Nlink:      binary.LittleEndian.Uint32(b[4:8]),
		UID:        binary.LittleEndian.Uint32(b[8:12]),
		GID:        binary.LittleEndian.Uint32(b[12:16]),
		Rdev:       binary.LittleEndian.Uint32(b[16:20]),
		Size:       binary.LittleEndian.Uint64(b[24:32]),
		MtimeSec:   int64(binary.LittleEndian.Uint64(b[32:40])),
		MtimeNsec:  binary.LittleEndian.Uint32(b[40:44]),
		DirentsOff: binary.LittleEndian.Uint64(b[48:56]),
		DirentsLen: binary.LittleEndian.Uint32(b[56:60]),
		XattrsLen:  binary.LittleEndian.Uint32(b[60:64]),
		XattrsOff:  binary.LittleEndian.Uint64(b[64:72]),
		PayloadOff: binary.LittleEndian.Uint64(b[72:80]),
		PayloadLen: binary.LittleEndian.Uint32(b[80:84]),
	}
	copy(ino.Digest[:], b[SizeInode-DigestSize:SizeInode])
	return ino
}

// EncodeInode writes ino into b. b must hold at least SizeInode bytes.
func EncodeInode(b []byte, ino Inode) {
	_ = b[SizeInode-1]
	binary.LittleEndian.PutUint32(b[0:4], ino.Mode)
	binary.LittleEndian.PutUint32(b[4:8], ino.Nlink)
	binary.LittleEndian.PutUint32(b[8:12], ino.UID)
	binary.LittleEndian.PutUint32(b[12:16], ino.GID)
	binary.LittleEndian.PutUint32(b[16:20], ino.Rdev)
	binary.LittleEndian.PutUint32(b[20:24], 0)
	binary.LittleEndian.PutUint64(b[24:32], ino.Size)
	binary.LittleEndian.PutUint64(b[32:40], uint64(ino.MtimeSec))
	binary.LittleEndian.PutUint32(b[40:44], ino.MtimeNsec)
	binary.LittleEndian.PutUint32(b[44:48], 0)
	binary.LittleEndian.PutUint64(b[48:56], ino.DirentsOff)
	binary.LittleEndian.PutUint32(b[56:60], ino.DirentsLen)
	binary.LittleEndian.PutUint32(b[60:64], ino.XattrsLen)
	binary.LittleEndian.PutUint64(b[64:72], ino.XattrsOff)
	binary.LittleEndian.PutUint64(b[72:80], ino.PayloadOff)
	binary.LittleEndian.PutUint32(b[80:84], ino.PayloadLen)
	binary.LittleEndian.PutUint32(b[84:88], 0)
	copy(b[SizeInode-DigestSize:SizeInode], ino.Digest[:])
}

// Dirent is one entry of a directory's sorted entry array. The array
// is preceded by a DirentHeader holding the entry count.
type Dirent struct {
	Inode    uint64
	NameOff  uint32
	NameLen  uint16
	FileType uint8
}

// DecodeDirentCount decodes the entry count prefixed to a dirent
// block. b must hold at least SizeDirentHeader bytes.
func DecodeDirentCount(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[0:4])
}

// DecodeDirent decodes one dirent record from b. b must hold at least
// SizeDirent bytes.
func DecodeDirent(b []byte) Dirent {
	_ = b[SizeDirent-1]
	return Dirent{
		Inode:    binary.LittleEndian.Uint64(b[0:8]),
		NameOff:  binary.LittleEndian.Uint32(b[8:12]),
		NameLen:  binary.LittleEndian.Uint16(b[12:14]),
		FileType: b[14],
	}
}

// EncodeDirent writes d into b. b must hold at least SizeDirent bytes.
func EncodeDirent(b []byte, d Dirent) {
	_ = b[SizeDirent-1]
	binary.LittleEndian.PutUint64(b[0:8], d.Inode)
	binary.LittleEndian.PutUint32(b[8:12], d.NameOff)
	binary.LittleEndian.PutUint16(b[12:14], d.NameLen)
	b[14] = d.FileType
	b[15] = 0
}

// XattrEntry prefixes one (name, value) pair in an xattr block. Name
// bytes follow the entry immediately, then value bytes, unpadded. The
// block itself is prefixed by a uint16 entry count and two reserved
// bytes.
type XattrEntry struct {
	NameLen  uint16
	ValueLen uint16
}

// DecodeXattrCount decodes the entry count prefixed to an xattr block.
// b must hold at least SizeXattrHeader bytes.
func DecodeXattrCount(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b[0:2])
}

// DecodeXattrEntry decodes one xattr entry header from b. b must hold
// at least SizeXattrEntry bytes.
func DecodeXattrEntry(b []byte) XattrEntry {
	_ = b[SizeXattrEntry-1]
	return XattrEntry{
		NameLen:  binary.LittleEndian.Uint16(b[0:2]),
		ValueLen: binary.LittleEndian.Uint16(b[2:4]),
	}
}
