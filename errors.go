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

	"github.com/containerd/errdefs"
)

// Errors returned by the reader. Each wraps an errdefs sentinel so
// callers can classify failures either with errors.Is against these or
// with the errdefs helpers.
var (
	// ErrTruncated means a region declared by the image extends past
	// the end of the byte source.
	ErrTruncated = fmt.Errorf("image truncated: %w", errdefs.ErrDataLoss)

	// ErrInvalidFormat means the image is structurally inconsistent:
	// bad magic, overlapping or overflowing table references, or a
	// malformed record.
	ErrInvalidFormat = fmt.Errorf("invalid image: %w", errdefs.ErrInvalidArgument)

	// ErrUnsupportedVersion means the image declares a format version
	// this reader does not understand.
	ErrUnsupportedVersion = fmt.Errorf("unsupported image version: %w", errdefs.ErrInvalidArgument)

	// ErrOutOfRange means an index is beyond a declared count.
	ErrOutOfRange = fmt.Errorf("index out of range: %w", errdefs.ErrOutOfRange)

	// ErrNotADirectory means a directory operation was requested on a
	// non-directory inode.
	ErrNotADirectory = fmt.Errorf("not a directory: %w", errdefs.ErrFailedPrecondition)

	// ErrNotARegularFile means a payload operation was requested on a
	// non-regular inode.
	ErrNotARegularFile = fmt.Errorf("not a regular file: %w", errdefs.ErrFailedPrecondition)

	// ErrNotFound is the ordinary negative result of a name lookup.
	ErrNotFound = fmt.Errorf("name not found: %w", errdefs.ErrNotFound)

	// ErrNotPresent means optional data (such as an xattr block) is
	// absent from the inode. Like ErrNotFound it is a normal outcome,
	// not a corruption signal.
	ErrNotPresent = fmt.Errorf("not present: %w", errdefs.ErrNotFound)

	// ErrBufferTooSmall means the caller-supplied buffer cannot hold
	// the result. The operation also reports the required size so the
	// caller can retry.
	ErrBufferTooSmall = fmt.Errorf("buffer too small: %w", errdefs.ErrFailedPrecondition)

	// ErrDepthExceeded means a bounded traversal reached its depth
	// limit before exhausting the tree.
	ErrDepthExceeded = fmt.Errorf("traversal depth exceeded: %w", errdefs.ErrResourceExhausted)
)
