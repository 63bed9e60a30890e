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

package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"golang.org/x/sys/unix"

	composefs "github.com/composefs/go-composefs"
	"github.com/composefs/go-composefs/fsverity"
	"github.com/composefs/go-composefs/internal/disk"
)

// The overlayfs "source" is not meaningful by default, but it
// identifies the software that created the mount.
const mountSource = "composefs"

// Mount assembles a composefs mount of the image at imagePath onto
// mountpoint: fs-verity precondition, loop device, kernel EROFS mount,
// overlayfs with the object directories as data-only lowers.
func Mount(ctx context.Context, imagePath, mountpoint string, opts Options) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return MountFile(ctx, f, imagePath, mountpoint, opts)
}

// MountFile is Mount over an already-open image file. imagePath is
// used only for display (loop device naming); it may be empty.
func MountFile(ctx context.Context, f *os.File, imagePath, mountpoint string, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	if opts.ExpectedDigest != "" {
		measured, err := fsverity.MeasureFile(f)
		if err != nil {
			return fmt.Errorf("measure image: %w", err)
		}
		if measured != opts.ExpectedDigest {
			return fmt.Errorf("expected %s, measured %s: %w", opts.ExpectedDigest, measured, ErrVerityMismatch)
		}
	}

	// Only the fixed-size prologue is read here; the rest of the image
	// is decoded by the kernel.
	var hdr [disk.SizeImageHeader]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read image header: %w", composefs.ErrTruncated)
		}
		return fmt.Errorf("read image header: %w", err)
	}
	h := disk.DecodeImageHeader(hdr[:])
	if h.Magic != disk.ImageMagic {
		return fmt.Errorf("image magic %#x: %w", h.Magic, composefs.ErrInvalidFormat)
	}
	hasACL := h.Flags&disk.FlagHasACL != 0

	loopFile, err := attachLoop(f, imagePath)
	if err != nil {
		return err
	}
	// Autoclear tears the device down once the EROFS mount (or this
	// handle, on error) is gone.
	defer loopFile.Close()
	log.G(ctx).WithFields(log.Fields{
		"device": loopFile.Name(),
		"image":  imagePath,
	}).Debug("attached image to loop device")

	imageMount := opts.ImageMountDir
	createdTmp := false
	if imageMount == "" {
		imageMount, err = os.MkdirTemp("", ".composefs.")
		if err != nil {
			return err
		}
		createdTmp = true
	}

	if err := mountErofs(ctx, loopFile.Name(), imageMount, hasACL, &opts); err != nil {
		if createdTmp {
			os.Remove(imageMount)
		}
		return fmt.Errorf("mount erofs: %w", err)
	}

	err = mountOverlay(ctx, imageMount, mountpoint, &opts)

	unix.Unmount(imageMount, unix.MNT_DETACH)
	if createdTmp {
		os.Remove(imageMount)
	}
	if err != nil {
		return fmt.Errorf("mount overlay: %w", err)
	}
	return nil
}

// mountErofs mounts the loop device as a read-only EROFS filesystem,
// preferring the new mount API and falling back to mount(2) on kernels
// without fsopen. ACL support is disabled unless the image declares it.
func mountErofs(ctx context.Context, source, target string, hasACL bool, opts *Options) error {
	fsfd, err := unix.Fsopen("erofs", unix.FSOPEN_CLOEXEC)
	if err != nil {
		if !errors.Is(err, unix.ENOSYS) {
			return fmt.Errorf("fsopen erofs: %w", err)
		}
		return mountErofsLegacy(source, target, hasACL, opts)
	}
	defer unix.Close(fsfd)

	if err := unix.FsconfigSetString(fsfd, "source", source); err != nil {
		return fmt.Errorf("fsconfig source: %w", err)
	}
	if err := unix.FsconfigSetFlag(fsfd, "ro"); err != nil {
		return fmt.Errorf("fsconfig ro: %w", err)
	}
	if !hasACL {
		if err := unix.FsconfigSetFlag(fsfd, "noacl"); err != nil {
			return fmt.Errorf("fsconfig noacl: %w", err)
		}
	}
	if err := unix.FsconfigCreate(fsfd); err != nil {
		return fmt.Errorf("fsconfig create: %w", err)
	}

	mntfd, err := unix.Fsmount(fsfd, unix.FSMOUNT_CLOEXEC, unix.MS_RDONLY)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mntfd)

	if opts.Idmap {
		attr := unix.MountAttr{
			Attr_set:  unix.MOUNT_ATTR_IDMAP,
			Userns_fd: uint64(opts.IdmapFd),
		}
		if err := unix.MountSetattr(mntfd, "", unix.AT_EMPTY_PATH, &attr); err != nil {
			return fmt.Errorf("mount_setattr idmap: %w", err)
		}
	}

	if err := unix.MoveMount(mntfd, "", unix.AT_FDCWD, target, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount: %w", err)
	}
	return nil
}

func mountErofsLegacy(source, target string, hasACL bool, opts *Options) error {
	// Idmapped mounts need the new mount API.
	if opts.Idmap {
		return fmt.Errorf("idmapped mount needs the new mount API: %w", errdefs.ErrNotImplemented)
	}
	var data string
	if !hasACL {
		data = "noacl"
	}
	if err := unix.Mount(source, target, "erofs", unix.MS_RDONLY, data); err != nil {
		return fmt.Errorf("mount erofs on %s: %w", target, err)
	}
	return nil
}

// mountOverlay stacks overlayfs over the EROFS image mount with the
// object directories as data-only lower layers. The new mount API path
// handles commas in paths through lowerdir+/datadir+ appends; kernels
// without append support fall back to the legacy option string.
func mountOverlay(ctx context.Context, imageMount, mountpoint string, opts *Options) error {
	err := mountOverlayNewAPI(ctx, imageMount, mountpoint, opts)
	if !errors.Is(err, unix.ENOSYS) {
		return err
	}
	log.G(ctx).Debug("new mount API unavailable for overlay, using legacy mount")
	return mountOverlayLegacy(imageMount, mountpoint, opts)
}

func mountOverlayNewAPI(ctx context.Context, imageMount, mountpoint string, opts *Options) error {
	fsfd, err := unix.Fsopen("overlay", unix.FSOPEN_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.ENOSYS) {
			return unix.ENOSYS
		}
		return fmt.Errorf("fsopen overlay: %w", err)
	}
	defer unix.Close(fsfd)

	// Probe that overlayfs really implements the new API rather than
	// routing everything through the legacy option parser.
	if unix.FsconfigSetString(fsfd, "unsupported", "unsupported") == nil {
		return unix.ENOSYS
	}

	if err := unix.FsconfigSetString(fsfd, "source", mountSource); err != nil {
		return fmt.Errorf("fsconfig source: %w", err)
	}
	if err := unix.FsconfigSetString(fsfd, "metacopy", "on"); err != nil {
		return fmt.Errorf("fsconfig metacopy: %w", err)
	}
	if err := unix.FsconfigSetString(fsfd, "redirect_dir", "on"); err != nil {
		return fmt.Errorf("fsconfig redirect_dir: %w", err)
	}
	if opts.RequireVerity || opts.TryVerity {
		if err := unix.FsconfigSetString(fsfd, "verity", "require"); err != nil && opts.RequireVerity {
			return fmt.Errorf("fsconfig verity: %w", err)
		}
	}
	if opts.Volatile {
		// Purely an optimization; ignore kernels that reject it.
		unix.FsconfigSetFlag(fsfd, "volatile")
	}

	// lowerdir+ / datadir+ appends landed in 6.7 together with
	// data-only lowers. EINVAL from either means an older kernel;
	// report ENOSYS so the caller falls back.
	if err := unix.FsconfigSetString(fsfd, "lowerdir+", imageMount); err != nil {
		if errors.Is(err, unix.EINVAL) {
			return unix.ENOSYS
		}
		return fmt.Errorf("fsconfig lowerdir: %w", err)
	}
	for _, objDir := range opts.ObjDirs {
		if err := unix.FsconfigSetString(fsfd, "datadir+", objDir); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return unix.ENOSYS
			}
			return fmt.Errorf("fsconfig datadir: %w", err)
		}
	}
	if opts.UpperDir != "" {
		if err := unix.FsconfigSetString(fsfd, "upperdir", opts.UpperDir); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return unix.ENOSYS
			}
			return fmt.Errorf("fsconfig upperdir: %w", err)
		}
		if err := unix.FsconfigSetString(fsfd, "workdir", opts.WorkDir); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return unix.ENOSYS
			}
			return fmt.Errorf("fsconfig workdir: %w", err)
		}
	}
	if err := unix.FsconfigCreate(fsfd); err != nil {
		if errors.Is(err, unix.EINVAL) {
			return unix.ENOSYS
		}
		return fmt.Errorf("fsconfig create: %w", err)
	}

	var mountFlags int
	if opts.ReadOnly {
		mountFlags |= unix.MS_RDONLY
	}
	mntfd, err := unix.Fsmount(fsfd, unix.FSMOUNT_CLOEXEC, mountFlags)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mntfd)

	if err := unix.MoveMount(mntfd, "", unix.AT_FDCWD, mountpoint, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount: %w", err)
	}
	return nil
}

func mountOverlayLegacy(imageMount, mountpoint string, opts *Options) error {
	var flags uintptr
	if opts.ReadOnly {
		flags |= unix.MS_RDONLY
	}

	// Try the "::" data-only lower syntax first; EINVAL means the
	// kernel predates it and the objdirs become ordinary lowers.
	data := overlayOptions(lowerDirOption(imageMount, opts.ObjDirs, true), opts)
	err := unix.Mount(mountSource, mountpoint, "overlay", flags|unix.MS_SILENT, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("mount overlay on %s: %w", mountpoint, err)
	}

	data = overlayOptions(lowerDirOption(imageMount, opts.ObjDirs, false), opts)
	if err := unix.Mount(mountSource, mountpoint, "overlay", flags, data); err != nil {
		return fmt.Errorf("mount overlay on %s: %w", mountpoint, err)
	}
	return nil
}
