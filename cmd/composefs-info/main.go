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

// composefs-info inspects composefs descriptor images: file listings,
// full metadata dumps, and the set of backing objects an object store
// must provide for the image to be complete.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/containerd/log"
	"github.com/urfave/cli/v2"

	composefs "github.com/composefs/go-composefs"
)

const defaultDepth = 256

func main() {
	app := &cli.App{
		Name:      "composefs-info",
		Usage:     "inspect composefs images",
		ArgsUsage: "<command> <image>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mmap",
				Usage: "memory-map the image instead of using positioned reads",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(cliContext *cli.Context) error {
			if cliContext.Bool("debug") {
				return log.SetLevel("debug")
			}
			return nil
		},
		Commands: []*cli.Command{
			lsCommand,
			dumpCommand,
			objectsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "composefs-info: %v\n", err)
		os.Exit(1)
	}
}

func openImage(cliContext *cli.Context) (*composefs.Context, error) {
	path := cliContext.Args().First()
	if path == "" {
		return nil, errors.New("please provide an image path")
	}
	var (
		src composefs.ByteSource
		err error
	)
	if cliContext.Bool("mmap") {
		src, err = composefs.OpenFileMapped(path)
	} else {
		src, err = composefs.OpenFile(path)
	}
	if err != nil {
		return nil, err
	}
	ctx, err := composefs.NewContext(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ctx, nil
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "list the files in an image",
	ArgsUsage: "<image>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "depth",
			Usage: "maximum directory depth to descend",
			Value: defaultDepth,
		},
	},
	Action: func(cliContext *cli.Context) error {
		ctx, err := openImage(cliContext)
		if err != nil {
			return err
		}
		defer ctx.Close()

		return ctx.Walk(cliContext.Int("depth"), func(p string, ino *composefs.Inode) error {
			fmt.Printf("%s %4d %5d %5d %10d %s\n",
				ino.FileMode(), ino.Nlink(), ino.UID(), ino.GID(), ino.Size(), p)
			return nil
		})
	},
}

var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "dump all image metadata",
	ArgsUsage: "<image>",
	Action: func(cliContext *cli.Context) error {
		ctx, err := openImage(cliContext)
		if err != nil {
			return err
		}
		defer ctx.Close()

		return ctx.Walk(defaultDepth, func(p string, ino *composefs.Inode) error {
			fmt.Printf("%s\n", p)
			fmt.Printf("\tino=%d mode=%#o nlink=%d uid=%d gid=%d size=%d mtime=%s\n",
				ino.Index(), ino.Mode(), ino.Nlink(), ino.UID(), ino.GID(), ino.Size(),
				ino.ModTime().UTC().Format("2006-01-02T15:04:05.999999999Z"))
			if ino.IsRegular() {
				if payload, err := ctx.PayloadPath(ino, composefs.PayloadDigestFallback); err == nil {
					fmt.Printf("\tpayload=%s\n", payload)
				}
				if ino.HasDigest() {
					fmt.Printf("\tdigest=%s\n", ino.Digest())
				}
			}
			return dumpXattrs(ctx, ino)
		})
	},
}

func dumpXattrs(ctx *composefs.Context, ino *composefs.Inode) error {
	xattrs, err := ctx.OpenXattrs(ino)
	if err != nil {
		if errors.Is(err, composefs.ErrNotPresent) {
			return nil
		}
		return err
	}

	names, err := sizedCall(func(buf []byte) (int, error) {
		return xattrs.ListNames(buf)
	})
	if err != nil {
		return err
	}
	for _, name := range splitNames(names) {
		value, err := sizedCall(func(buf []byte) (int, error) {
			return xattrs.GetValue(name, buf)
		})
		if err != nil {
			return err
		}
		fmt.Printf("\txattr %s=%q\n", name, value)
	}
	return nil
}

// sizedCall drives the two-call buffer sizing protocol: probe with an
// empty buffer, retry with the reported required size.
func sizedCall(fn func(buf []byte) (int, error)) ([]byte, error) {
	n, err := fn(nil)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, composefs.ErrBufferTooSmall) {
		return nil, err
	}
	buf := make([]byte, n)
	n, err = fn(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// splitNames unpacks the NUL-terminated name list of ListNames.
func splitNames(b []byte) []string {
	var names []string
	start := 0
	for i, c := range b {
		if c == 0 {
			names = append(names, string(b[start:i]))
			start = i + 1
		}
	}
	return names
}

var objectsCommand = &cli.Command{
	Name:      "objects",
	Usage:     "list the backing objects referenced by an image",
	ArgsUsage: "<image>",
	Action: func(cliContext *cli.Context) error {
		ctx, err := openImage(cliContext)
		if err != nil {
			return err
		}
		defer ctx.Close()

		seen := map[string]struct{}{}
		err = ctx.Walk(defaultDepth, func(p string, ino *composefs.Inode) error {
			if !ino.IsRegular() || ino.Size() == 0 {
				return nil
			}
			payload, err := ctx.PayloadPath(ino, composefs.PayloadDigestFallback)
			if err != nil {
				if errors.Is(err, composefs.ErrNotPresent) {
					return nil
				}
				return err
			}
			seen[payload] = struct{}{}
			return nil
		})
		if err != nil {
			return err
		}

		objects := make([]string, 0, len(seen))
		for o := range seen {
			objects = append(objects, o)
		}
		sort.Strings(objects)
		for _, o := range objects {
			fmt.Println(o)
		}
		return nil
	},
}
