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

// Package mount assembles composefs mounts: the image is attached to a
// loop device, handed to the kernel's EROFS decoder, and combined with
// the content-addressed object directories through overlayfs. Only the
// image's fixed-size header is parsed here; everything else is the
// kernel's job.
package mount

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	digest "github.com/opencontainers/go-digest"
)

// ErrVerityMismatch means the image's fs-verity measurement does not
// match the expected digest supplied in Options.
var ErrVerityMismatch = fmt.Errorf("fs-verity digest mismatch: %w", errdefs.ErrFailedPrecondition)

// Options configure a composefs mount.
type Options struct {
	// ObjDirs are the content-addressed object directories supplying
	// file payloads, in lookup order. At least one is required.
	ObjDirs []string

	// UpperDir and WorkDir enable a writable overlay layer. Both must
	// be set together.
	UpperDir string
	WorkDir  string

	// ImageMountDir, when set, is used for the intermediate EROFS
	// mount instead of a private temporary directory.
	ImageMountDir string

	// ExpectedDigest, when set, is compared against the image's
	// fs-verity measurement before anything is mounted.
	ExpectedDigest digest.Digest

	// IdmapFd is a user-namespace file descriptor applied to the
	// EROFS mount. Required when Idmap is set.
	IdmapFd int

	ReadOnly      bool
	RequireVerity bool
	TryVerity     bool
	Volatile      bool
	Idmap         bool
}

func (o *Options) validate() error {
	if len(o.ObjDirs) == 0 {
		return fmt.Errorf("no object directories: %w", errdefs.ErrInvalidArgument)
	}
	if (o.UpperDir == "") != (o.WorkDir == "") {
		return fmt.Errorf("upperdir and workdir must be set together: %w", errdefs.ErrInvalidArgument)
	}
	if o.Idmap && o.IdmapFd <= 0 {
		return fmt.Errorf("idmap requested without a userns fd: %w", errdefs.ErrInvalidArgument)
	}
	if o.ExpectedDigest != "" {
		if err := o.ExpectedDigest.Validate(); err != nil {
			return fmt.Errorf("expected digest %q: %w", o.ExpectedDigest, errdefs.ErrInvalidArgument)
		}
	}
	return nil
}

// escapeMountOption escapes commas so a path can be embedded in a
// legacy mount option string.
func escapeMountOption(s string) string {
	return strings.ReplaceAll(s, ",", `\,`)
}

// lowerDirOption builds the overlayfs lowerdir value from the EROFS
// image mount and the object directories. Kernels with data-only
// lowerdir support take the objdirs after a "::" separator; older ones
// take plain ":".
func lowerDirOption(imageMount string, objDirs []string, dataLower bool) string {
	sep := ":"
	if dataLower {
		sep = "::"
	}
	var b strings.Builder
	b.WriteString(escapeMountOption(imageMount))
	for _, d := range objDirs {
		b.WriteString(sep)
		b.WriteString(escapeMountOption(d))
	}
	return b.String()
}

// overlayOptions builds the full legacy overlayfs option string.
func overlayOptions(lowerdir string, o *Options) string {
	var b strings.Builder
	b.WriteString("metacopy=on,redirect_dir=on,lowerdir=")
	b.WriteString(lowerdir)
	if o.UpperDir != "" {
		b.WriteString(",upperdir=")
		b.WriteString(escapeMountOption(o.UpperDir))
		b.WriteString(",workdir=")
		b.WriteString(escapeMountOption(o.WorkDir))
	}
	if o.RequireVerity {
		b.WriteString(",verity=require")
	}
	return b.String()
}
