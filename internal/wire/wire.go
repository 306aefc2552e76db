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

// Package wire is the length-prefixed binary protocol the client and
// daemon speak over their loopback connection. Every multi-byte field
// is little-endian, and every variable-length field (string, byte
// slice, string slice) carries its own int32 length prefix ahead of
// its bytes, the same shape google-kati's paraConn uses for its
// worker-process protocol.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RequestKind tags which variant a Request carries.
type RequestKind int32

const (
	KindZeroStats RequestKind = iota
	KindGetStats
	KindShutdown
	KindCompile
)

// Request is one client->daemon message. Only the field matching Kind
// is meaningful.
type Request struct {
	Kind    RequestKind
	Compile CompileRequest
}

// CompileRequest carries everything the daemon needs to classify and
// run a compile on the client's behalf.
type CompileRequest struct {
	Exe          string
	Cwd          string
	Args         []string
	Env          []string
	ForceRecache bool
}

// ResponseKind tags which variant a Response carries. A Compile
// request produces two Responses on the wire in sequence: first a
// CompileStarted or UnhandledCompile, then later a CompileFinished.
type ResponseKind int32

const (
	KindCompileStarted ResponseKind = iota
	KindUnhandledCompile
	KindStats
	KindShuttingDown
	KindCompileFinished
)

// StatsSnapshot is one read of the daemon's counters (see
// daemon.Stats.Snapshot), per spec's Server Statistics.
type StatsSnapshot struct {
	CompileRequests          int64            `json:"compile_requests"`
	RequestsExecuted         int64            `json:"requests_executed"`
	CacheHits                int64            `json:"cache_hits"`
	CacheMisses              int64            `json:"cache_misses"`
	CacheErrors              int64            `json:"cache_errors"`
	ForcedRecaches           int64            `json:"forced_recaches"`
	NonCacheableReasons      map[string]int64 `json:"non_cacheable_reasons"`
	CacheWriteDurationMillis int64            `json:"cache_write_duration_ms"`
}

// CompileFinished is the second-stage Compile response: the real
// compiler's (or the cache's synthesized) result.
type CompileFinished struct {
	ExitCode  int32
	HasSignal bool
	Signal    int32
	Stdout    []byte
	Stderr    []byte
}

// Response is one daemon->client message. Only the field matching Kind
// is meaningful.
type Response struct {
	Kind ResponseKind

	UnhandledReason string        // KindUnhandledCompile
	Stats           StatsSnapshot // KindStats, KindShuttingDown
	Finished        CompileFinished
}

// EncodeRequest writes req to w.
func EncodeRequest(w io.Writer, req Request) error {
	if err := sendInt32(w, int32(req.Kind)); err != nil {
		return err
	}
	if req.Kind != KindCompile {
		return nil
	}
	c := req.Compile
	if err := sendString(w, c.Exe); err != nil {
		return err
	}
	if err := sendString(w, c.Cwd); err != nil {
		return err
	}
	if err := sendStringSlice(w, c.Args); err != nil {
		return err
	}
	if err := sendStringSlice(w, c.Env); err != nil {
		return err
	}
	return sendBool(w, c.ForceRecache)
}

// DecodeRequest reads one Request from r.
func DecodeRequest(r io.Reader) (Request, error) {
	k, err := recvInt32(r)
	if err != nil {
		return Request{}, err
	}
	req := Request{Kind: RequestKind(k)}
	if req.Kind != KindCompile {
		if req.Kind < KindZeroStats || req.Kind > KindCompile {
			return Request{}, fmt.Errorf("wire: unknown request kind %d", k)
		}
		return req, nil
	}
	var c CompileRequest
	if c.Exe, err = recvString(r); err != nil {
		return Request{}, err
	}
	if c.Cwd, err = recvString(r); err != nil {
		return Request{}, err
	}
	if c.Args, err = recvStringSlice(r); err != nil {
		return Request{}, err
	}
	if c.Env, err = recvStringSlice(r); err != nil {
		return Request{}, err
	}
	if c.ForceRecache, err = recvBool(r); err != nil {
		return Request{}, err
	}
	req.Compile = c
	return req, nil
}

// EncodeResponse writes resp to w.
func EncodeResponse(w io.Writer, resp Response) error {
	if err := sendInt32(w, int32(resp.Kind)); err != nil {
		return err
	}
	switch resp.Kind {
	case KindCompileStarted:
		return nil
	case KindUnhandledCompile:
		return sendString(w, resp.UnhandledReason)
	case KindStats, KindShuttingDown:
		return sendStats(w, resp.Stats)
	case KindCompileFinished:
		return sendFinished(w, resp.Finished)
	default:
		return fmt.Errorf("wire: unknown response kind %d", resp.Kind)
	}
}

// DecodeResponse reads one Response from r.
func DecodeResponse(r io.Reader) (Response, error) {
	k, err := recvInt32(r)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Kind: ResponseKind(k)}
	switch resp.Kind {
	case KindCompileStarted:
		return resp, nil
	case KindUnhandledCompile:
		resp.UnhandledReason, err = recvString(r)
		return resp, err
	case KindStats, KindShuttingDown:
		resp.Stats, err = recvStats(r)
		return resp, err
	case KindCompileFinished:
		resp.Finished, err = recvFinished(r)
		return resp, err
	default:
		return Response{}, fmt.Errorf("wire: unknown response kind %d", k)
	}
}

func sendStats(w io.Writer, s StatsSnapshot) error {
	for _, v := range []int64{
		s.CompileRequests, s.RequestsExecuted, s.CacheHits,
		s.CacheMisses, s.CacheErrors, s.ForcedRecaches,
		s.CacheWriteDurationMillis,
	} {
		if err := sendInt64(w, v); err != nil {
			return err
		}
	}
	if err := sendInt32(w, int32(len(s.NonCacheableReasons))); err != nil {
		return err
	}
	for reason, count := range s.NonCacheableReasons {
		if err := sendString(w, reason); err != nil {
			return err
		}
		if err := sendInt64(w, count); err != nil {
			return err
		}
	}
	return nil
}

func recvStats(r io.Reader) (StatsSnapshot, error) {
	var s StatsSnapshot
	ints := make([]*int64, 7)
	ints[0], ints[1], ints[2] = &s.CompileRequests, &s.RequestsExecuted, &s.CacheHits
	ints[3], ints[4], ints[5] = &s.CacheMisses, &s.CacheErrors, &s.ForcedRecaches
	ints[6] = &s.CacheWriteDurationMillis
	for _, p := range ints {
		v, err := recvInt64(r)
		if err != nil {
			return StatsSnapshot{}, err
		}
		*p = v
	}
	n, err := recvInt32(r)
	if err != nil {
		return StatsSnapshot{}, err
	}
	if n > 0 {
		s.NonCacheableReasons = make(map[string]int64, n)
	}
	for i := int32(0); i < n; i++ {
		reason, err := recvString(r)
		if err != nil {
			return StatsSnapshot{}, err
		}
		count, err := recvInt64(r)
		if err != nil {
			return StatsSnapshot{}, err
		}
		s.NonCacheableReasons[reason] = count
	}
	return s, nil
}

func sendFinished(w io.Writer, f CompileFinished) error {
	if err := sendInt32(w, f.ExitCode); err != nil {
		return err
	}
	if err := sendBool(w, f.HasSignal); err != nil {
		return err
	}
	if err := sendInt32(w, f.Signal); err != nil {
		return err
	}
	if err := sendBytes(w, f.Stdout); err != nil {
		return err
	}
	return sendBytes(w, f.Stderr)
}

func recvFinished(r io.Reader) (CompileFinished, error) {
	var f CompileFinished
	var err error
	if f.ExitCode, err = recvInt32(r); err != nil {
		return CompileFinished{}, err
	}
	if f.HasSignal, err = recvBool(r); err != nil {
		return CompileFinished{}, err
	}
	if f.Signal, err = recvInt32(r); err != nil {
		return CompileFinished{}, err
	}
	if f.Stdout, err = recvBytes(r); err != nil {
		return CompileFinished{}, err
	}
	if f.Stderr, err = recvBytes(r); err != nil {
		return CompileFinished{}, err
	}
	return f, nil
}

func sendInt32(w io.Writer, v int32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func recvInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func sendInt64(w io.Writer, v int64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func recvInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func sendBool(w io.Writer, b bool) error {
	var v int32
	if b {
		v = 1
	}
	return sendInt32(w, v)
}

func recvBool(r io.Reader) (bool, error) {
	v, err := recvInt32(r)
	return v != 0, err
}

func sendBytes(w io.Writer, b []byte) error {
	if err := sendInt32(w, int32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func recvBytes(r io.Reader) ([]byte, error) {
	n, err := recvInt32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("wire: negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func sendString(w io.Writer, s string) error {
	return sendBytes(w, []byte(s))
}

func recvString(r io.Reader) (string, error) {
	b, err := recvBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sendStringSlice(w io.Writer, ss []string) error {
	if err := sendInt32(w, int32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := sendString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func recvStringSlice(r io.Reader) ([]string, error) {
	n, err := recvInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("wire: negative count %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = recvString(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}
