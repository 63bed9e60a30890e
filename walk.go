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
	"errors"
	"fmt"
	"path"
)

// SkipDir, returned by a WalkFunc, prunes descent into the directory
// just visited without aborting the walk.
var SkipDir = errors.New("skip this directory")

// WalkFunc visits one inode during Walk. p is the slash-separated path
// from the root ("." for the root itself).
type WalkFunc func(p string, ino *Inode) error

// Walk traverses the tree depth-first from the root, visiting every
// reachable inode. maxDepth bounds the directory nesting the walk will
// enter; descending past it fails with ErrDepthExceeded instead of
// recursing further, so self-referential or absurdly deep images
// terminate deterministically. Entries whose inodes or entry arrays
// cannot be decoded are skipped, matching the tolerance of directory
// iteration.
func (c *Context) Walk(maxDepth int, fn WalkFunc) error {
	root, err := c.RootInode()
	if err != nil {
		return err
	}
	if err := fn(".", root); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	dir, err := c.OpenDirectory(root)
	if err != nil {
		return err
	}
	return c.walkDir(".", dir, maxDepth, fn)
}

func (c *Context) walkDir(p string, dir *Directory, depthLeft int, fn WalkFunc) error {
	if depthLeft <= 0 {
		return fmt.Errorf("at %q: %w", p, ErrDepthExceeded)
	}
	var entries []DirEntry
	if err := dir.Iterate(0, func(e DirEntry) bool {
		entries = append(entries, e)
		return true
	}); err != nil {
		return err
	}
	for _, e := range entries {
		child, err := c.GetInode(e.Inode)
		if err != nil {
			continue
		}
		childPath := path.Join(p, e.Name)
		if err := fn(childPath, child); err != nil {
			if errors.Is(err, SkipDir) {
				continue
			}
			return err
		}
		if !child.IsDir() {
			continue
		}
		sub, err := c.OpenDirectory(child)
		if err != nil {
			// A corrupt subdirectory must not abort the rest of
			// the traversal.
			continue
		}
		if err := c.walkDir(childPath, sub, depthLeft-1, fn); err != nil {
			return err
		}
	}
	return nil
}
