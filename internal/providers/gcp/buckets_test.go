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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestBuckets_Lifecycle(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()

	require.True(t, env.provider.CreateBucket(ctx, "isos", true).OK())
	require.True(t, env.provider.CreateBucket(ctx, "backups", false).OK())
	assert.True(t, env.cloud.IsPublic("isos", ""))
	assert.False(t, env.cloud.IsPublic("backups", ""))

	res := env.provider.CreateBucket(ctx, "isos", false)
	assert.Equal(t, contracts.ErrorTypeAlreadyExists, res.Kind)
	assert.Equal(t, "Bucket isos already there", res.Reason)

	buckets, err := env.provider.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"backups", "isos"}, buckets)

	local := writeTempFile(t, "boot.iso", "iso-bytes")
	res = env.provider.UploadToBucket(ctx, "isos", local, "", true)
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, "boot.iso", res.Details["object"])
	assert.True(t, env.cloud.IsPublic("isos", "boot.iso"))

	res = env.provider.UploadToBucket(ctx, "isos", local, "renamed.iso", false)
	require.True(t, res.OK(), res.Reason)
	assert.False(t, env.cloud.IsPublic("isos", "renamed.iso"))

	files, err := env.provider.ListBucketFiles(ctx, "isos")
	require.NoError(t, err)
	assert.Equal(t, []contracts.BucketFile{{Name: "boot.iso", Size: 9}, {Name: "renamed.iso", Size: 9}}, files)

	var buf bytes.Buffer
	require.True(t, env.provider.DownloadFromBucket(ctx, "isos", "renamed.iso", &buf).OK())
	assert.Equal(t, "iso-bytes", buf.String())

	require.True(t, env.provider.DeleteFromBucket(ctx, "isos", "renamed.iso").OK())
	_, ok := env.cloud.Object("isos", "renamed.iso")
	assert.False(t, ok)

	require.True(t, env.provider.DeleteBucket(ctx, "isos").OK())
	buckets, err = env.provider.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"backups"}, buckets)

	_, err = env.provider.ListBucketFiles(ctx, "isos")
	require.Error(t, err)
	assert.True(t, contracts.IsNotFound(err))
	assert.Equal(t, "Inexistent bucket isos", contracts.ResultFrom(err).Reason)
}

func TestBuckets_MissingThings(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	env.cloud.AddBucket(testProject, "data")

	tests := []struct {
		name   string
		result contracts.Result
		kind   contracts.ErrorType
		reason string
	}{
		{
			name:   "delete missing bucket",
			result: env.provider.DeleteBucket(ctx, "nope"),
			kind:   contracts.ErrorTypeNotFound,
			reason: "Inexistent bucket nope",
		},
		{
			name:   "delete missing object",
			result: env.provider.DeleteFromBucket(ctx, "data", "a/b.txt"),
			kind:   contracts.ErrorTypeNotFound,
			reason: "Inexistent path a/b.txt in bucket data",
		},
		{
			name:   "download missing object",
			result: env.provider.DownloadFromBucket(ctx, "data", "c.txt", &bytes.Buffer{}),
			kind:   contracts.ErrorTypeNotFound,
			reason: "Inexistent path c.txt in bucket data",
		},
		{
			name:   "upload missing file",
			result: env.provider.UploadToBucket(ctx, "data", "/nonexistent/file.txt", "", false),
			kind:   contracts.ErrorTypeInvalidSpec,
			reason: "Invalid path /nonexistent/file.txt",
		},
		{
			name:   "upload to missing bucket",
			result: env.provider.UploadToBucket(ctx, "nope", writeTempFile(t, "f.txt", "x"), "", false),
			kind:   contracts.ErrorTypeNotFound,
			reason: "Inexistent bucket nope",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, tt.result.OK())
			assert.Equal(t, tt.kind, tt.result.Kind)
			assert.Equal(t, tt.reason, tt.result.Reason)
		})
	}

	_, err := env.provider.ListBucketFiles(ctx, "nope")
	assert.True(t, contracts.IsNotFound(err))
}

func TestPublicBucketFileURL(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	assert.Equal(t, "https://storage.googleapis.com/isos/boot.iso", env.provider.PublicBucketFileURL("isos", "boot.iso"))
}
