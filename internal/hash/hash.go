// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package hash computes deterministic content digests for publishable
// entities. The digest is independent of JSON key order and whitespace, so
// semantically identical content always hashes the same regardless of how it
// was serialized. Draft and published rows are hashed identically, which is
// what lets publish compare them directly.
package hash

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// volatileKeys are stripped from the payload before hashing. Content maps
// should not carry these, but callers assembling maps from row scans might.
var volatileKeys = map[string]bool{
	"id":         true,
	"createdAt":  true,
	"updatedAt":  true,
	"created_at": true,
	"updated_at": true,
}

// Content hashes an entity's content map under its kind. The kind prefixes
// the payload so identical field sets of different kinds never collide.
func Content(kind string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('\n')
	writeCanonical(&b, stripVolatile(fields))
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Chain computes a version-log chain hash from the previous entry's hash and
// this entry's recorded parts. A recomputed chain that does not match the
// stored hashes means the log was tampered with out of band.
func Chain(previousHash string, parts ...string) string {
	h := blake3.New()
	_, _ = h.WriteString(previousHash)
	for _, p := range parts {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func stripVolatile(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if volatileKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// writeCanonical serializes a value with recursively sorted object keys and
// no insignificant whitespace.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		enc, _ := json.Marshal(val)
		b.Write(enc)
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case json.Number:
		b.WriteString(val.String())
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, _ := json.Marshal(k)
			b.Write(enc)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Fall back to the standard encoder for typed values that slipped
		// through (e.g. ints from hand-built maps).
		enc, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		var generic any
		if json.Unmarshal(enc, &generic) == nil {
			writeCanonical(b, generic)
			return
		}
		b.Write(enc)
	}
}
