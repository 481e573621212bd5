/*
Copyright 2025.

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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

func newBucketCommand(opts *rootOptions) *cobra.Command {
	bucketCmd := &cobra.Command{
		Use:     "bucket",
		Aliases: []string{"buckets"},
		Short:   "Manage storage buckets",
	}

	var public bool
	createCmd := &cobra.Command{
		Use:   "create <bucket>",
		Short: "Create a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.CreateBucket(ctx, args[0], public)
			})
		},
	}
	createCmd.Flags().BoolVar(&public, "public", false, "Make the bucket publicly readable")

	var (
		overrideName string
		publicFile   bool
	)
	uploadCmd := &cobra.Command{
		Use:   "upload <bucket> <file>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.UploadToBucket(ctx, args[0], args[1], overrideName, publicFile)
			})
		},
	}
	uploadCmd.Flags().StringVar(&overrideName, "name", "", "Object name; defaults to the file name")
	uploadCmd.Flags().BoolVar(&publicFile, "public", false, "Make the object publicly readable")

	var dest string
	downloadCmd := &cobra.Command{
		Use:   "download <bucket> <path>",
		Short: "Download an object to a local file, or to stdout with --dest -",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := dest
			if target == "" {
				target = filepath.Base(args[1])
			}
			if target == "-" {
				_, err := opts.execute(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.DownloadFromBucket(ctx, args[0], args[1], opts.out)
				})
				return err
			}
			f, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			defer f.Close()
			err = opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.DownloadFromBucket(ctx, args[0], args[1], f).With("file", target)
			})
			if err != nil {
				_ = os.Remove(target)
			}
			return err
		},
	}
	downloadCmd.Flags().StringVar(&dest, "dest", "", "Local destination; defaults to the object base name")

	bucketCmd.AddCommand(
		createCmd,
		&cobra.Command{
			Use:   "delete <bucket>",
			Short: "Delete a bucket and every object in it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.DeleteBucket(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List buckets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]string, error) {
					return p.ListBuckets(ctx)
				}, func(buckets []string) error {
					rows := make([][]string, 0, len(buckets))
					for _, b := range buckets {
						rows = append(rows, []string{b})
					}
					return opts.render(buckets, []string{"bucket"}, rows)
				})
			},
		},
		&cobra.Command{
			Use:   "files <bucket>",
			Short: "List the objects of a bucket",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.BucketFile, error) {
					return p.ListBucketFiles(ctx, args[0])
				}, func(files []contracts.BucketFile) error {
					rows := make([][]string, 0, len(files))
					for _, f := range files {
						rows = append(rows, []string{f.Name, strconv.FormatInt(f.Size, 10)})
					}
					return opts.render(files, []string{"name", "size"}, rows)
				})
			},
		},
		uploadCmd,
		downloadCmd,
		&cobra.Command{
			Use:   "rm <bucket> <path>",
			Short: "Delete an object",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.DeleteFromBucket(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "url <bucket> <path>",
			Short: "Print the public URL of an object",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (string, error) {
					return p.PublicBucketFileURL(args[0], args[1]), nil
				}, func(url string) error {
					_, err := fmt.Fprintln(opts.out, url)
					return err
				})
			},
		},
	)
	return bucketCmd
}
