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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An inode carries a digest alongside its xattr and payload references;
// the trailing digest bytes must not alias any other field.
func TestInodeFieldsDoNotAlias(t *testing.T) {
	in := Inode{
		Mode:       StatTypeReg | 0644,
		Nlink:      1,
		Size:       42,
		XattrsOff:  5,
		XattrsLen:  20,
		PayloadOff: 40,
		PayloadLen: 7,
	}
	for i := range in.Digest {
		in.Digest[i] = byte(i + 1)
	}

	var b [SizeInode]byte
	EncodeInode(b[:], in)
	out := DecodeInode(b[:])

	assert.Equal(t, in, out)
	assert.Equal(t, uint64(5), out.XattrsOff)
	assert.Equal(t, uint64(40), out.PayloadOff)
	assert.Equal(t, uint32(7), out.PayloadLen)
}

func TestInodeStrideHoldsAllFields(t *testing.T) {
	// Fixed fields and padding end at 88; the digest fills the rest of
	// the stride.
	require.Equal(t, 88+DigestSize, SizeInode)
}
