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

package disk

import "io/fs"

// Dirent file-type hints, matching the DT_* values directory entries
// carry so consumers can classify entries without fetching the inode.
const (
	FileTypeUnknown = 0
	FileTypeFifo    = 1
	FileTypeChrdev  = 2
	FileTypeDir     = 4
	FileTypeBlkdev  = 6
	FileTypeReg     = 8
	FileTypeSymlink = 10
	FileTypeSock    = 12
)

// Stat mode bits as stored in the inode Mode field.
const (
	StatTypeMask    = 0170000
	StatTypeFifo    = 0010000
	StatTypeChrdev  = 0020000
	StatTypeDir     = 0040000
	StatTypeBlkdev  = 0060000
	StatTypeReg     = 0100000
	StatTypeSymlink = 0120000
	StatTypeSock    = 0140000
	StatTypeIsUID   = 0004000
	StatTypeIsGID   = 0002000
	StatTypeIsVTX   = 0001000
)

// FileTypeFromMode reduces stat mode bits to the dirent file-type hint.
func FileTypeFromMode(mode uint32) uint8 {
	return uint8((mode & StatTypeMask) >> 12)
}

// ModeToFileMode converts stat mode bits to a Go fs.FileMode.
func ModeToFileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0777)
	switch mode & StatTypeMask {
	case StatTypeReg:
	case StatTypeDir:
		m |= fs.ModeDir
	case StatTypeChrdev:
		m |= fs.ModeCharDevice | fs.ModeDevice
	case StatTypeBlkdev:
		m |= fs.ModeDevice
	case StatTypeFifo:
		m |= fs.ModeNamedPipe
	case StatTypeSock:
		m |= fs.ModeSocket
	case StatTypeSymlink:
		m |= fs.ModeSymlink
	default:
		m |= fs.ModeIrregular
	}
	if mode&StatTypeIsUID != 0 {
		m |= fs.ModeSetuid
	}
	if mode&StatTypeIsGID != 0 {
		m |= fs.ModeSetgid
	}
	if mode&StatTypeIsVTX != 0 {
		m |= fs.ModeSticky
	}
	return m
}
