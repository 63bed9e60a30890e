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

// mount.composefs mounts a composefs image backed by one or more
// content-addressed object directories.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/containerd/log"
	digest "github.com/opencontainers/go-digest"
	"github.com/urfave/cli/v2"

	"github.com/composefs/go-composefs/mount"
)

func main() {
	app := &cli.App{
		Name:      "mount.composefs",
		Usage:     "mount a composefs image",
		ArgsUsage: "[flags] <image> <mountpoint>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "basedir",
				Usage: "object directory supplying file payloads (repeatable)",
			},
			&cli.StringFlag{
				Name:  "upperdir",
				Usage: "overlayfs upper directory for a writable layer",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "overlayfs work directory, required with upperdir",
			},
			&cli.StringFlag{
				Name:  "digest",
				Usage: "expected fs-verity digest of the image",
			},
			&cli.BoolFlag{
				Name:  "require-verity",
				Usage: "refuse backing objects without fs-verity",
			},
			&cli.BoolFlag{
				Name:  "try-verity",
				Usage: "use fs-verity for backing objects when supported",
			},
			&cli.BoolFlag{
				Name:  "volatile",
				Usage: "mount the writable layer volatile",
			},
			&cli.BoolFlag{
				Name:  "ro",
				Usage: "mount read-only",
			},
			&cli.StringFlag{
				Name:  "idmap",
				Usage: "path to a user namespace to idmap the mount into",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mount.composefs: %v\n", err)
		os.Exit(1)
	}
}

func run(cliContext *cli.Context) error {
	if cliContext.Bool("debug") {
		if err := log.SetLevel("debug"); err != nil {
			return err
		}
	}
	if cliContext.NArg() != 2 {
		return errors.New("please provide an image and a mountpoint")
	}
	image := cliContext.Args().Get(0)
	mountpoint := cliContext.Args().Get(1)

	opts := mount.Options{
		ObjDirs:       cliContext.StringSlice("basedir"),
		UpperDir:      cliContext.String("upperdir"),
		WorkDir:       cliContext.String("workdir"),
		RequireVerity: cliContext.Bool("require-verity"),
		TryVerity:     cliContext.Bool("try-verity"),
		Volatile:      cliContext.Bool("volatile"),
		ReadOnly:      cliContext.Bool("ro"),
	}
	if d := cliContext.String("digest"); d != "" {
		parsed, err := digest.Parse(d)
		if err != nil {
			return fmt.Errorf("parse digest %q: %w", d, err)
		}
		opts.ExpectedDigest = parsed
	}
	if userns := cliContext.String("idmap"); userns != "" {
		f, err := os.Open(userns)
		if err != nil {
			return fmt.Errorf("open userns: %w", err)
		}
		defer f.Close()
		opts.Idmap = true
		opts.IdmapFd = int(f.Fd())
	}

	return mount.Mount(cliContext.Context, image, mountpoint, opts)
}
