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
	"encoding/hex"
	"fmt"
)

// PayloadFlags adjust payload path resolution.
type PayloadFlags uint32

const (
	// PayloadDigestFallback derives a content-addressed path from the
	// inode's digest when no explicit payload path is stored: the
	// first two hex digits become a fanout directory, the remainder
	// the object name, keeping backing stores shallow.
	PayloadDigestFallback PayloadFlags = 1 << 0
)

// PayloadPath reconstructs the backing-store relative path under which
// a regular file's content is kept. Returns ErrNotARegularFile for
// other inode types and ErrNotPresent when the inode stores no path
// and no fallback applies.
func (c *Context) PayloadPath(ino *Inode, flags PayloadFlags) (string, error) {
	if !ino.IsRegular() {
		return "", fmt.Errorf("inode %d: %w", ino.index, ErrNotARegularFile)
	}
	if ino.raw.PayloadLen == 0 {
		if flags&PayloadDigestFallback != 0 && ino.HasDigest() {
			sum := hex.EncodeToString(ino.raw.Digest[:])
			return sum[:2] + "/" + sum[2:], nil
		}
		return "", fmt.Errorf("inode %d has no payload path: %w", ino.index, ErrNotPresent)
	}
	p, err := c.pool(ino.raw.PayloadOff, uint64(ino.raw.PayloadLen))
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(p, 0) >= 0 || p[0] == '/' {
		return "", fmt.Errorf("inode %d payload path: %w", ino.index, ErrInvalidFormat)
	}
	return string(p), nil
}
