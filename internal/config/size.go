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

package config

import (
	"regexp"
	"strconv"
)

var sizePattern = regexp.MustCompile(`^(\d+)([KMGT])$`)

const sizeUnit = 1024

// parseSize parses a "<digits><K|M|G|T>" byte-size string, e.g. "10G".
// A bare integer or an empty string is not a valid size and returns
// false, matching config.rs's parse_size, which only ever recognizes
// the suffixed form.
func parseSize(val string) (int64, bool) {
	m := sizePattern.FindStringSubmatch(val)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "K":
		return n * sizeUnit, true
	case "M":
		return n * sizeUnit * sizeUnit, true
	case "G":
		return n * sizeUnit * sizeUnit * sizeUnit, true
	case "T":
		return n * sizeUnit * sizeUnit * sizeUnit * sizeUnit, true
	default:
		return 0, false
	}
}
