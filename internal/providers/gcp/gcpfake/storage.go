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

package gcpfake

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// AddBucket creates an empty bucket owned by project
func (c *Cloud) AddBucket(project, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[name] = &bucket{project: project, objects: map[string]*object{}}
}

// Object returns the content of an object
func (c *Cloud) Object(bucketName, name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[bucketName]
	if !ok {
		return nil, false
	}
	obj, ok := b.objects[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// IsPublic reports whether a bucket, or an object when name is set, grants public read
func (c *Cloud) IsPublic(bucketName, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[bucketName]
	if !ok {
		return false
	}
	if name == "" {
		return b.public
	}
	obj, ok := b.objects[name]
	return ok && obj.public
}

func (c *Cloud) ListBuckets(ctx context.Context, project string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListBuckets", project, false); err != nil {
		return nil, err
	}
	var out []string
	for name, b := range c.buckets {
		if b.project == project {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Cloud) CreateBucket(ctx context.Context, project, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CreateBucket", name, true); err != nil {
		return err
	}
	if _, ok := c.buckets[name]; ok {
		return apiError(http.StatusConflict, "conflict", "Your previous request to create the named bucket succeeded and you already own it.")
	}
	c.buckets[name] = &bucket{project: project, objects: map[string]*object{}}
	return nil
}

func (c *Cloud) DeleteBucket(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteBucket", name, true); err != nil {
		return err
	}
	b, ok := c.buckets[name]
	if !ok {
		return errBucketNotExist
	}
	if len(b.objects) > 0 {
		return apiError(http.StatusConflict, "conflict", "The bucket you tried to delete is not empty.")
	}
	delete(c.buckets, name)
	return nil
}

func (c *Cloud) BucketExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("BucketExists", name, false); err != nil {
		return false, err
	}
	_, ok := c.buckets[name]
	return ok, nil
}

func (c *Cloud) ListObjects(ctx context.Context, name string) ([]contracts.BucketFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListObjects", name, false); err != nil {
		return nil, err
	}
	b, ok := c.buckets[name]
	if !ok {
		return nil, errBucketNotExist
	}
	out := make([]contracts.BucketFile, 0, len(b.objects))
	for objName, obj := range b.objects {
		out = append(out, contracts.BucketFile{Name: objName, Size: int64(len(obj.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Cloud) DeleteObject(ctx context.Context, bucketName, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteObject", bucketName+"/"+name, true); err != nil {
		return err
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		return errBucketNotExist
	}
	if _, ok := b.objects[name]; !ok {
		return errObjectNotExist
	}
	delete(b.objects, name)
	return nil
}

func (c *Cloud) UploadObject(ctx context.Context, bucketName, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("UploadObject", bucketName+"/"+name, true); err != nil {
		return err
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		return errBucketNotExist
	}
	b.objects[name] = &object{data: data}
	return nil
}

func (c *Cloud) DownloadObject(ctx context.Context, bucketName, name string, w io.Writer) error {
	c.mu.Lock()
	if err := c.enter("DownloadObject", bucketName+"/"+name, false); err != nil {
		c.mu.Unlock()
		return err
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		c.mu.Unlock()
		return errBucketNotExist
	}
	obj, ok := b.objects[name]
	if !ok {
		c.mu.Unlock()
		return errObjectNotExist
	}
	data := append([]byte(nil), obj.data...)
	c.mu.Unlock()
	_, err := w.Write(data)
	return err
}

func (c *Cloud) MakeBucketPublic(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("MakeBucketPublic", name, true); err != nil {
		return err
	}
	b, ok := c.buckets[name]
	if !ok {
		return errBucketNotExist
	}
	b.public = true
	return nil
}

func (c *Cloud) MakeObjectPublic(ctx context.Context, bucketName, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("MakeObjectPublic", bucketName+"/"+name, true); err != nil {
		return err
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		return errBucketNotExist
	}
	obj, ok := b.objects[name]
	if !ok {
		return errObjectNotExist
	}
	obj.public = true
	return nil
}

// Close is a no-op
func (c *Cloud) Close() error { return nil }
