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
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	loopControlPath = "/dev/loop-control"
	loopDevFormat   = "/dev/loop%d"

	// Matches the EROFS block size used by image producers; keeps the
	// kernel from issuing partial-block reads through the loop device.
	loopBlockSize = 4096
)

func getFreeLoopDev() (int, error) {
	ctrl, err := os.OpenFile(loopControlPath, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", loopControlPath, err)
	}
	defer ctrl.Close()
	num, err := unix.IoctlRetInt(int(ctrl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return 0, fmt.Errorf("get free loop device: %w", err)
	}
	return num, nil
}

func configureLoopDev(backing *os.File, loopDev, displayName string) (f *os.File, err error) {
	loopFile, err := os.OpenFile(loopDev, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open loop device: %w", err)
	}
	defer func() {
		if err != nil {
			loopFile.Close()
		}
	}()

	if err = unix.IoctlSetInt(int(loopFile.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return nil, fmt.Errorf("set loop fd: %w", err)
	}

	info := unix.LoopInfo64{
		Flags: unix.LO_FLAGS_READ_ONLY | unix.LO_FLAGS_AUTOCLEAR | unix.LO_FLAGS_DIRECT_IO,
	}
	copy(info.File_name[:], displayName)
	if err = unix.IoctlLoopSetStatus64(int(loopFile.Fd()), &info); err != nil {
		// Retry without direct IO in case the kernel or backing
		// filesystem does not support it.
		info.Flags &^= unix.LO_FLAGS_DIRECT_IO
		if err = unix.IoctlLoopSetStatus64(int(loopFile.Fd()), &info); err != nil {
			unix.IoctlSetInt(int(loopFile.Fd()), unix.LOOP_CLR_FD, 0)
			return nil, fmt.Errorf("set loop status: %w", err)
		}
	}

	// Best effort; old kernels lack the ioctl and the default works.
	unix.IoctlSetInt(int(loopFile.Fd()), unix.LOOP_SET_BLOCK_SIZE, loopBlockSize)

	return loopFile, nil
}

// attachLoop attaches the image file to a free read-only, autoclearing
// loop device and returns the open device. The device stays allocated
// while the returned file or a mount of it is held; the autoclear flag
// releases it afterward.
//
// Grabbing a free device races with other losetup users, so EBUSY from
// the setup step retries with a fresh device.
func attachLoop(backing *os.File, displayName string) (*os.File, error) {
	for retry := 1; retry < 200; retry++ {
		num, err := getFreeLoopDev()
		if err != nil {
			return nil, err
		}
		loopFile, err := configureLoopDev(backing, fmt.Sprintf(loopDevFormat, num), displayName)
		if err != nil {
			if errors.Is(err, unix.EBUSY) {
				// Fall back a bit to avoid a live lock against
				// concurrent losetup users.
				time.Sleep(time.Millisecond * time.Duration(rand.Intn(retry*10)))
				continue
			}
			return nil, err
		}
		return loopFile, nil
	}
	return nil, errors.New("timeout attaching loop device")
}
