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

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
)

// StorageClient implements StorageAPI on the Cloud Storage client
type StorageClient struct {
	client *storage.Client
	c      caller
}

var _ StorageAPI = (*StorageClient)(nil)

// NewStorageClient wraps client; policy may be nil
func NewStorageClient(client *storage.Client, policy *resilience.Policy) *StorageClient {
	return &StorageClient{client: client, c: newCaller("storage", policy)}
}

func (sc *StorageClient) ListBuckets(ctx context.Context, project string) ([]string, error) {
	return callRead(ctx, sc.c, "buckets.list", func(ctx context.Context) ([]string, error) {
		var out []string
		it := sc.client.Buckets(ctx, project)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return out, nil
			}
			if err != nil {
				return nil, err
			}
			out = append(out, attrs.Name)
		}
	})
}

func (sc *StorageClient) CreateBucket(ctx context.Context, project, bucket string) error {
	_, err := callMutate(ctx, sc.c, "buckets.insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sc.client.Bucket(bucket).Create(ctx, project, nil)
	})
	return err
}

func (sc *StorageClient) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := callMutate(ctx, sc.c, "buckets.delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sc.client.Bucket(bucket).Delete(ctx)
	})
	return err
}

func (sc *StorageClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return callRead(ctx, sc.c, "buckets.get", func(ctx context.Context) (bool, error) {
		_, err := sc.client.Bucket(bucket).Attrs(ctx)
		if errors.Is(err, storage.ErrBucketNotExist) {
			return false, nil
		}
		return err == nil, err
	})
}

func (sc *StorageClient) ListObjects(ctx context.Context, bucket string) ([]contracts.BucketFile, error) {
	return callRead(ctx, sc.c, "objects.list", func(ctx context.Context) ([]contracts.BucketFile, error) {
		var out []contracts.BucketFile
		it := sc.client.Bucket(bucket).Objects(ctx, nil)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return out, nil
			}
			if err != nil {
				return nil, err
			}
			out = append(out, contracts.BucketFile{Name: attrs.Name, Size: attrs.Size})
		}
	})
}

func (sc *StorageClient) DeleteObject(ctx context.Context, bucket, object string) error {
	_, err := callMutate(ctx, sc.c, "objects.delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sc.client.Bucket(bucket).Object(object).Delete(ctx)
	})
	return err
}

func (sc *StorageClient) UploadObject(ctx context.Context, bucket, object string, r io.Reader) error {
	_, err := callMutate(ctx, sc.c, "objects.insert", func(ctx context.Context) (struct{}, error) {
		w := sc.client.Bucket(bucket).Object(object).NewWriter(ctx)
		if _, err := io.Copy(w, r); err != nil {
			_ = w.Close()
			return struct{}{}, fmt.Errorf("failed to upload %s: %w", object, err)
		}
		return struct{}{}, w.Close()
	})
	return err
}

func (sc *StorageClient) DownloadObject(ctx context.Context, bucket, object string, w io.Writer) error {
	_, err := callMutate(ctx, sc.c, "objects.get", func(ctx context.Context) (struct{}, error) {
		r, err := sc.client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return struct{}{}, err
		}
		defer r.Close()
		if _, err := io.Copy(w, r); err != nil {
			return struct{}{}, fmt.Errorf("failed to download %s: %w", object, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (sc *StorageClient) MakeBucketPublic(ctx context.Context, bucket string) error {
	_, err := callMutate(ctx, sc.c, "bucketAccessControls.insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sc.client.Bucket(bucket).ACL().Set(ctx, storage.AllUsers, storage.RoleReader)
	})
	return err
}

func (sc *StorageClient) MakeObjectPublic(ctx context.Context, bucket, object string) error {
	_, err := callMutate(ctx, sc.c, "objectAccessControls.insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sc.client.Bucket(bucket).Object(object).ACL().Set(ctx, storage.AllUsers, storage.RoleReader)
	})
	return err
}

func (sc *StorageClient) Close() error {
	return sc.client.Close()
}
