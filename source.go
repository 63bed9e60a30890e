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
	"io"
	"os"
)

// ByteSource is a region of bytes with a known length. Implementations
// must support concurrent ReadAt calls; the reader never writes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// sliceable is the fast path for sources that expose their backing
// bytes directly (in-memory buffers, memory mappings). Accessors slice
// instead of copying when the source supports it.
type sliceable interface {
	Bytes() []byte
}

type bytesSource struct {
	b []byte
}

// NewBytesSource wraps an in-memory buffer as a ByteSource. The buffer
// must not be mutated while the source is in use.
func NewBytesSource(b []byte) ByteSource {
	return &bytesSource{b: b}
}

func (s *bytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.b)) {
		return 0, fmt.Errorf("read at %d beyond buffer of %d bytes: %w", off, len(s.b), io.EOF)
	}
	n := copy(p, s.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *bytesSource) Size() int64 { return int64(len(s.b)) }

func (s *bytesSource) Bytes() []byte { return s.b }

func (s *bytesSource) Close() error { return nil }

type readerSource struct {
	ra   io.ReaderAt
	size int64
}

// NewReaderSource wraps a positioned reader of known size as a
// ByteSource. Close closes the underlying reader when it implements
// io.Closer.
func NewReaderSource(ra io.ReaderAt, size int64) ByteSource {
	return &readerSource{ra: ra, size: size}
}

func (s *readerSource) ReadAt(p []byte, off int64) (int, error) {
	return s.ra.ReadAt(p, off)
}

func (s *readerSource) Size() int64 { return s.size }

func (s *readerSource) Close() error {
	if c, ok := s.ra.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenFile opens path as a positioned-read ByteSource owning the file
// handle. Accessor calls may block on I/O; use OpenFileMapped for a
// non-blocking memory-mapped source.
func OpenFile(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewReaderSource(f, fi.Size()), nil
}
