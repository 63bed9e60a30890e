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

//go:build !linux

package fsverity

import (
	"fmt"
	"os"

	"github.com/containerd/errdefs"
	digest "github.com/opencontainers/go-digest"
)

// Enable is only supported on Linux.
func Enable(path string) error {
	return fmt.Errorf("fs-verity: %w", errdefs.ErrNotImplemented)
}

// Measure is only supported on Linux.
func Measure(path string) (digest.Digest, error) {
	return "", fmt.Errorf("fs-verity: %w", errdefs.ErrNotImplemented)
}

// MeasureFile is only supported on Linux.
func MeasureFile(f *os.File) (digest.Digest, error) {
	return "", fmt.Errorf("fs-verity: %w", errdefs.ErrNotImplemented)
}

// IsEnabled is only supported on Linux.
func IsEnabled(path string) (bool, error) {
	return false, fmt.Errorf("fs-verity: %w", errdefs.ErrNotImplemented)
}
