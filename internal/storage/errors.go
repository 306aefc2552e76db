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

import "errors"

// ErrBackendUnavailable is returned by backends that satisfy the
// Storage contract but aren't wired to a real network service in this
// build (Redis, S3): config parsing and construction succeed, but
// every Get/Put fails with this sentinel.
var ErrBackendUnavailable = errors.New("storage: backend not available in this build")
