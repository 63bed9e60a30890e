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

package mount

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/errdefs"
)

// Mount is only supported on Linux.
func Mount(ctx context.Context, imagePath, mountpoint string, opts Options) error {
	return fmt.Errorf("composefs mount: %w", errdefs.ErrNotImplemented)
}

// MountFile is only supported on Linux.
func MountFile(ctx context.Context, f *os.File, imagePath, mountpoint string, opts Options) error {
	return fmt.Errorf("composefs mount: %w", errdefs.ErrNotImplemented)
}
