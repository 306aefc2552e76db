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

// Package ccdlog maps the CCD_LOG_LEVEL environment variable onto a
// level filter in front of glog, the logging library the rest of this
// tree uses. The filter applies only to this package's own Errorf,
// Warningf, Infof, Debugf and Tracef; packages that call glog directly
// (classify, pipeline, daemon and others) are not filtered by it.
package ccdlog

import (
	"os"
	"strings"

	"github.com/golang/glog"
)

// Level is the CCD_LOG_LEVEL scale, off being strictly quieter than
// glog's own lowest severity (ERROR) and trace being noisier than any
// fixed -v verbosity glog ships with.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLevel maps CCD_LOG_LEVEL's textual values onto Level, defaulting
// to LevelWarn for an empty or unrecognized value.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LevelOff
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelWarn
	}
}

// LevelFromEnv reads CCD_LOG_LEVEL, defaulting as ParseLevel does.
func LevelFromEnv() Level {
	return ParseLevel(os.Getenv("CCD_LOG_LEVEL"))
}

// current is the level this package's logging functions compare
// against. Debugf and Tracef log through glog.V(1) and glog.V(2), so
// they print only when glog's own -v flag is also at least 1 or 2.
var current = LevelFromEnv()

// Configure sets the process-wide level, overriding what LevelFromEnv
// captured at package init. cmd/ccd calls this once at startup with
// the level from the resolved config.
func Configure(l Level) { current = l }

// Errorf logs at error severity, suppressed only by LevelOff.
func Errorf(format string, args ...interface{}) {
	if current < LevelError {
		return
	}
	glog.Errorf(format, args...)
}

// Warningf logs at warning severity, suppressed below LevelWarn.
func Warningf(format string, args ...interface{}) {
	if current < LevelWarn {
		return
	}
	glog.Warningf(format, args...)
}

// Infof logs at info severity, suppressed below LevelInfo.
func Infof(format string, args ...interface{}) {
	if current < LevelInfo {
		return
	}
	glog.Infof(format, args...)
}

// Debugf logs verbose diagnostics, suppressed below LevelDebug.
func Debugf(format string, args ...interface{}) {
	if current < LevelDebug {
		return
	}
	glog.V(1).Infof(format, args...)
}

// Tracef logs the noisiest diagnostics, suppressed below LevelTrace.
func Tracef(format string, args ...interface{}) {
	if current < LevelTrace {
		return
	}
	glog.V(2).Infof(format, args...)
}
