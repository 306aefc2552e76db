// Copyright 2024 The ccd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteStubsAlwaysUnavailable(t *testing.T) {
	redis := newRedisStub("redis://localhost:6379")
	_, err := redis.Get(context.Background(), Fingerprint("sha256:abc"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = redis.Put(context.Background(), Fingerprint("sha256:abc"), nil)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	size, ok := redis.CurrentSize()
	assert.False(t, ok)
	assert.Zero(t, size)

	s3 := newS3Stub("mybucket", "s3.amazonaws.com")
	assert.Equal(t, "s3://s3.amazonaws.com/mybucket", s3.Location())
}

func TestFingerprintString(t *testing.T) {
	fp := Fingerprint("sha256:deadbeef")
	require.Equal(t, "sha256:deadbeef", fp.String())
}
