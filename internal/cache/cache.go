//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache implements the per-file analysis cache: a compact, signed JSON document gating
// re-analysis on a simple (mtime_ns, size) stat signature per file. Unlike internal/baseline, the
// cache is allowed to fail open — any read, decode, or signature problem just means "treat it as
// empty and recompute", since the cache is a performance optimization, not a correctness gate.
package cache

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the cache schema version embedded in every file written by this binary.
const Version = 1

// signingKey is fixed and non-secret: the cache signature exists to detect accidental truncation
// or concurrent-writer corruption, not to authenticate against an adversary, so there is no key
// management story here (compare internal/baseline, which needs no key at all because it hashes
// rather than signs).
var signingKey = []byte("codeclone-cache-v1")

// FuncEntry is one cached function-level analysis result.
type FuncEntry struct {
	FuncName      string `json:"f"`
	StartLine     int    `json:"s"`
	EndLine       int    `json:"e"`
	Signature     string `json:"sig,omitempty"`
	Hash          string `json:"h"`
	LOCBucket     int    `json:"lb"`
	LOC           int    `json:"loc"`
	StmtCount     int    `json:"sc"`
	IsConstructor bool   `json:"ctor,omitempty"`
}

// BlockEntry is one cached statement-window block analysis result.
type BlockEntry struct {
	FuncName   string `json:"f"`
	StartLine  int    `json:"s"`
	EndLine    int    `json:"e"`
	Hash       string `json:"h"`
	StmtCount  int    `json:"sc"`
	StmtStart  int    `json:"ws"`
	StmtEnd    int    `json:"we"`
}

// SegmentEntry is one cached sliding-window analysis result.
type SegmentEntry struct {
	FuncName    string `json:"f"`
	StartLine   int    `json:"s"`
	EndLine     int    `json:"e"`
	BlockStart  int    `json:"bs"`
	BlockEnd    int    `json:"be"`
	SegmentHash string `json:"sh"`
	SegmentSig  string `json:"ss"`
}

// FileEntry is one source file's cached per-function/block/segment results (the `u`, `b`, `s`
// arrays of the wire contract), keyed by its stat signature so a change to the file (in either
// direction) invalidates its entry without needing to re-read or re-parse it.
type FileEntry struct {
	MTimeNS  int64          `json:"mtime_ns"`
	Size     int64          `json:"size"`
	Funcs    []FuncEntry    `json:"u,omitempty"`
	Blocks   []BlockEntry   `json:"b,omitempty"`
	Segments []SegmentEntry `json:"s,omitempty"`
}

// payload is the signed content of a cache file.
type payload struct {
	Py    string               `json:"py"` // toolchain tag, named to match the wire contract
	FP    int                  `json:"fp"` // fingerprint format version
	Files map[string]FileEntry `json:"files"`
}

// file is the full on-disk cache document: {v, payload, sig}.
type file struct {
	V       int    `json:"v"`
	Payload payload `json:"payload"`
	Sig     string `json:"sig"`
}

// Cache is an in-memory, loaded cache ready for per-file lookups and updates.
type Cache struct {
	toolchainTag       string
	fingerprintVersion int
	entries            map[string]FileEntry
}

// New creates an empty cache stamped with the given toolchain tag and fingerprint version.
func New(toolchainTag string, fingerprintVersion int) *Cache {
	return &Cache{toolchainTag: toolchainTag, fingerprintVersion: fingerprintVersion, entries: make(map[string]FileEntry)}
}

// Lookup returns the cached entry for relPath if present and its stat signature matches
// (mtimeNS, size) exactly; any mismatch is a cache miss, never a partial/stale hit.
func (c *Cache) Lookup(relPath string, mtimeNS, size int64) (FileEntry, bool) {
	e, ok := c.entries[relPath]
	if !ok || e.MTimeNS != mtimeNS || e.Size != size {
		return FileEntry{}, false
	}
	return e, true
}

// Store records relPath's analysis results under its current stat signature, overwriting any
// prior entry.
func (c *Cache) Store(relPath string, mtimeNS, size int64, funcs []FuncEntry, blocks []BlockEntry, segments []SegmentEntry) {
	c.entries[relPath] = FileEntry{MTimeNS: mtimeNS, Size: size, Funcs: funcs, Blocks: blocks, Segments: segments}
}

func sign(data []byte) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(data) //nolint:errcheck // hash.Hash.Write never errors
	return hex.EncodeToString(mac.Sum(nil))
}

// Load reads a cache file from path. Any problem at all — missing file, oversized file, malformed
// JSON, signature mismatch, schema/toolchain/fingerprint-version mismatch — results in a fresh
// empty cache and no error: this is the fail-open contract.
func Load(path, toolchainTag string, fingerprintVersion int, maxBytes int64) *Cache {
	empty := New(toolchainTag, fingerprintVersion)

	info, err := os.Stat(path)
	if err != nil || (maxBytes > 0 && info.Size() > maxBytes) {
		return empty
	}
	raw, err := os.ReadFile(path) //nolint:gosec // operator-controlled cache path
	if err != nil {
		return empty
	}
	if decompressed, ok := maybeDecompress(raw); ok {
		raw = decompressed
	}

	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return empty
	}
	canonical, err := json.Marshal(f.Payload)
	if err != nil || !hmac.Equal([]byte(sign(canonical)), []byte(f.Sig)) {
		return empty
	}
	if f.V != Version || f.Payload.Py != toolchainTag || f.Payload.FP != fingerprintVersion {
		return empty
	}

	c := New(toolchainTag, fingerprintVersion)
	c.entries = f.Payload.Files
	return c
}

// Save writes the cache atomically (temp file then rename). When the encoded payload would
// exceed maxCacheBytes, it is zstd-compressed before writing, exercising the compression
// dependency exactly where the cache contract calls for bounding on-disk size.
func Save(path string, c *Cache, maxCacheBytes int64) error {
	p := payload{Py: c.toolchainTag, FP: c.fingerprintVersion, Files: c.entries}
	canonical, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	f := file{V: Version, Payload: p, Sig: sign(canonical)}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal cache file: %w", err)
	}

	if maxCacheBytes > 0 && int64(len(data)) > maxCacheBytes {
		compressed, err := compress(data)
		if err != nil {
			return fmt.Errorf("compress cache file: %w", err)
		}
		data = compressed
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename cache into place: %w", err)
	}
	return nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close() //nolint:errcheck
	return enc.EncodeAll(data, nil), nil
}

func maybeDecompress(data []byte) ([]byte, bool) {
	if len(data) < 4 || !bytes.Equal(data[:4], zstdMagic) {
		return nil, false
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false
	}
	return out, true
}
