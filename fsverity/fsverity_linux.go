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

// Package fsverity wraps the kernel fs-verity ioctls used to measure
// and protect composefs images. Measurement is a pure precondition
// check over the raw file; the image reader itself never depends on it.
package fsverity

import (
	"fmt"
	"os"
	"unsafe"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sys/unix"
)

const verityBlockSize = 4096

// measurement mirrors struct fsverity_digest with room for the largest
// digest the kernel can return.
type measurement struct {
	algorithm uint16
	size      uint16
	raw       [64]byte
}

// Enable turns on fs-verity for the file at path using SHA-256. The
// file must be closed for writing and reside on a filesystem with
// verity support.
func Enable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	arg := unix.FsverityEnableArg{
		Version:        1,
		Hash_algorithm: unix.FS_VERITY_HASH_ALG_SHA256,
		Block_size:     verityBlockSize,
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.FS_IOC_ENABLE_VERITY, uintptr(unsafe.Pointer(&arg))); errno != 0 {
		return fmt.Errorf("enable fs-verity on %s: %w", path, errno)
	}
	return nil
}

// Measure returns the fs-verity digest of the file at path.
func Measure(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return MeasureFile(f)
}

// MeasureFile returns the fs-verity digest of an open file.
func MeasureFile(f *os.File) (digest.Digest, error) {
	m := measurement{size: uint16(len(measurement{}.raw))}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.FS_IOC_MEASURE_VERITY, uintptr(unsafe.Pointer(&m))); errno != 0 {
		return "", fmt.Errorf("measure fs-verity of %s: %w", f.Name(), errno)
	}
	if m.algorithm != unix.FS_VERITY_HASH_ALG_SHA256 {
		return "", fmt.Errorf("unexpected fs-verity algorithm %d on %s", m.algorithm, f.Name())
	}
	if int(m.size) > len(m.raw) {
		return "", fmt.Errorf("fs-verity digest of %d bytes on %s", m.size, f.Name())
	}
	return digest.NewDigestFromBytes(digest.SHA256, m.raw[:m.size]), nil
}

// IsEnabled reports whether fs-verity is active for the file at path.
func IsEnabled(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	flags, err := unix.IoctlGetInt(int(f.Fd()), unix.FS_IOC_GETFLAGS)
	if err != nil {
		return false, fmt.Errorf("get flags of %s: %w", path, err)
	}
	return flags&unix.FS_VERITY_FL != 0, nil
}
