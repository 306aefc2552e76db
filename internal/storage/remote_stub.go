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
	"time"

	"github.com/ccdtools/ccd/internal/bundle"
)

// remoteStub satisfies Storage for a backend whose network client this
// repo doesn't carry (Redis, S3): config parsing and construction are
// in scope per spec's Out of Scope note, the network calls are not.
type remoteStub struct {
	location string
}

var _ Storage = remoteStub{}

func newRedisStub(url string) Storage {
	return remoteStub{location: url}
}

func newS3Stub(bucket, endpoint string) Storage {
	return remoteStub{location: "s3://" + endpoint + "/" + bucket}
}

func (r remoteStub) Get(ctx context.Context, fp Fingerprint) (Result, error) {
	return Result{}, ErrBackendUnavailable
}

func (r remoteStub) Put(ctx context.Context, fp Fingerprint, b *bundle.Bundle) (time.Duration, error) {
	return 0, ErrBackendUnavailable
}

func (r remoteStub) Location() string { return r.location }

func (r remoteStub) CurrentSize() (int64, bool) { return 0, false }

func (r remoteStub) MaxSize() (int64, bool) { return 0, false }
