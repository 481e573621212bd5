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

package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

const publicStorageURL = "https://storage.googleapis.com"

// bucketMissing turns a missing bucket into the original's reason
func (p *Provider) bucketMissing(ctx context.Context, bucket string) error {
	exists, err := p.storage.BucketExists(ctx, bucket)
	if err != nil {
		return classify(err)
	}
	if !exists {
		return contracts.NewNotFoundError(fmt.Sprintf("Inexistent bucket %s", bucket), nil)
	}
	return nil
}

// CreateBucket creates a bucket in the project, optionally granting public read
func (p *Provider) CreateBucket(ctx context.Context, bucket string, public bool) contracts.Result {
	return p.run(ctx, "create-bucket", bucket, func(ctx context.Context) contracts.Result {
		existing, err := p.storage.ListBuckets(ctx, p.project)
		if err != nil {
			return contracts.ResultFrom(classify(err))
		}
		for _, b := range existing {
			if b == bucket {
				return contracts.Failure(contracts.ErrorTypeAlreadyExists, "Bucket %s already there", bucket)
			}
		}
		if err := p.storage.CreateBucket(ctx, p.project, bucket); err != nil {
			return contracts.ResultFrom(classify(err))
		}
		if public {
			if err := p.storage.MakeBucketPublic(ctx, bucket); err != nil {
				return contracts.ResultFrom(classify(err))
			}
		}
		return contracts.Success()
	})
}

// DeleteBucket removes every object and then the bucket itself
func (p *Provider) DeleteBucket(ctx context.Context, bucket string) contracts.Result {
	return p.run(ctx, "delete-bucket", bucket, func(ctx context.Context) contracts.Result {
		if err := p.bucketMissing(ctx, bucket); err != nil {
			return contracts.ResultFrom(err)
		}
		objects, err := p.storage.ListObjects(ctx, bucket)
		if err != nil {
			return contracts.ResultFrom(classify(err))
		}
		log := logging.FromContext(ctx)
		for _, obj := range objects {
			log.Info("Deleting object from bucket", "object", obj.Name, "bucket", bucket)
			if err := p.storage.DeleteObject(ctx, bucket, obj.Name); err != nil && !isNotFound(err) {
				return contracts.ResultFrom(classify(err))
			}
		}
		if err := p.storage.DeleteBucket(ctx, bucket); err != nil {
			return contracts.ResultFrom(classify(err))
		}
		return contracts.Success()
	})
}

// DeleteFromBucket removes one object
func (p *Provider) DeleteFromBucket(ctx context.Context, bucket, objectPath string) contracts.Result {
	return p.run(ctx, "delete-from-bucket", bucket, func(ctx context.Context) contracts.Result {
		if err := p.bucketMissing(ctx, bucket); err != nil {
			return contracts.ResultFrom(err)
		}
		if err := p.storage.DeleteObject(ctx, bucket, objectPath); err != nil {
			if isNotFound(err) {
				return contracts.Failure(contracts.ErrorTypeNotFound, "Inexistent path %s in bucket %s", objectPath, bucket)
			}
			return contracts.ResultFrom(classify(err))
		}
		return contracts.Success()
	})
}

// DownloadFromBucket streams one object into w
func (p *Provider) DownloadFromBucket(ctx context.Context, bucket, objectPath string, w io.Writer) contracts.Result {
	return p.run(ctx, "download-from-bucket", bucket, func(ctx context.Context) contracts.Result {
		if err := p.bucketMissing(ctx, bucket); err != nil {
			return contracts.ResultFrom(err)
		}
		if err := p.storage.DownloadObject(ctx, bucket, objectPath, w); err != nil {
			if isNotFound(err) {
				return contracts.Failure(contracts.ErrorTypeNotFound, "Inexistent path %s in bucket %s", objectPath, bucket)
			}
			return contracts.ResultFrom(classify(err))
		}
		return contracts.Success()
	})
}

// UploadToBucket uploads the local file at localPath, named after its base name unless overrideName is set
func (p *Provider) UploadToBucket(ctx context.Context, bucket, localPath, overrideName string, public bool) contracts.Result {
	return p.run(ctx, "upload-to-bucket", bucket, func(ctx context.Context) contracts.Result {
		f, err := os.Open(localPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid path %s", localPath)
			}
			return contracts.Failure(contracts.ErrorTypeInvalidSpec, "failed to open %s: %v", localPath, err)
		}
		defer f.Close()

		if err := p.bucketMissing(ctx, bucket); err != nil {
			return contracts.ResultFrom(err)
		}
		dest := filepath.Base(localPath)
		if overrideName != "" {
			dest = overrideName
		}
		if err := p.storage.UploadObject(ctx, bucket, dest, f); err != nil {
			return contracts.ResultFrom(classify(err))
		}
		if public {
			if err := p.storage.MakeObjectPublic(ctx, bucket, dest); err != nil {
				return contracts.ResultFrom(classify(err))
			}
		}
		return contracts.SuccessWith("object", dest)
	})
}

// ListBuckets returns the bucket names of the project
func (p *Provider) ListBuckets(ctx context.Context) ([]string, error) {
	return query(ctx, p, "list-buckets", p.project, func(ctx context.Context) ([]string, error) {
		buckets, err := p.storage.ListBuckets(ctx, p.project)
		if err != nil {
			return nil, err
		}
		sort.Strings(buckets)
		return buckets, nil
	})
}

// ListBucketFiles returns the objects of a bucket
func (p *Provider) ListBucketFiles(ctx context.Context, bucket string) ([]contracts.BucketFile, error) {
	return query(ctx, p, "list-bucket-files", bucket, func(ctx context.Context) ([]contracts.BucketFile, error) {
		if err := p.bucketMissing(ctx, bucket); err != nil {
			return nil, err
		}
		return p.storage.ListObjects(ctx, bucket)
	})
}

// PublicBucketFileURL returns the public download URL of an object
func (p *Provider) PublicBucketFileURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", publicStorageURL, bucket, objectPath)
}
