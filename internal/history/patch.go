// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package history implements the append-only version log: structural patches
// over an entity's JSON content, a per-entity hash chain, periodic full
// snapshots, and undo/redo/restore built on top of them.
package history

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/verso-cms/verso/internal/core"
)

// Op is one structural edit at a JSON-pointer path.
type Op struct {
	Op    string          `json:"op"` // add, replace, remove
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch is an ordered list of ops. Applying a patch to the state it was
// diffed from yields the target state exactly.
type Patch []Op

// Encode serializes a patch for storage. An empty patch encodes as "".
func (p Patch) Encode() string {
	if len(p) == 0 {
		return ""
	}
	raw, _ := json.Marshal(p)
	return string(raw)
}

// DecodePatch parses a stored patch. "" decodes to an empty patch.
func DecodePatch(s string) (Patch, error) {
	if s == "" {
		return nil, nil
	}
	var p Patch
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: malformed patch: %v", core.ErrIntegrity, err)
	}
	return p, nil
}

// Diff computes the ops that transform before into after. Both maps must be
// in decoded-JSON form (string/float64/bool/nil/[]any/map[string]any), which
// is what model.EncodeContent produces. Diff(after, before) is the inverse.
func Diff(before, after map[string]any) Patch {
	var patch Patch
	diffMap("", before, after, &patch)
	return patch
}

func diffMap(path string, before, after map[string]any, patch *Patch) {
	for k, bv := range before {
		av, ok := after[k]
		p := path + "/" + escapePointer(k)
		if !ok {
			*patch = append(*patch, Op{Op: "remove", Path: p})
			continue
		}
		diffValue(p, bv, av, patch)
	}
	for k, av := range after {
		if _, ok := before[k]; !ok {
			*patch = append(*patch, Op{Op: "add", Path: path + "/" + escapePointer(k), Value: mustMarshal(av)})
		}
	}
}

func diffValue(path string, before, after any, patch *Patch) {
	if reflect.DeepEqual(before, after) {
		return
	}
	bm, bok := before.(map[string]any)
	am, aok := after.(map[string]any)
	if bok && aok {
		diffMap(path, bm, am, patch)
		return
	}
	bs, bok := before.([]any)
	as, aok := after.([]any)
	if bok && aok {
		diffSlice(path, bs, as, patch)
		return
	}
	*patch = append(*patch, Op{Op: "replace", Path: path, Value: mustMarshal(after)})
}

func diffSlice(path string, before, after []any, patch *Patch) {
	common := len(before)
	if len(after) < common {
		common = len(after)
	}
	for i := 0; i < common; i++ {
		diffValue(path+"/"+strconv.Itoa(i), before[i], after[i], patch)
	}
	// Removals run highest index first so earlier indices stay valid.
	for i := len(before) - 1; i >= common; i-- {
		*patch = append(*patch, Op{Op: "remove", Path: path + "/" + strconv.Itoa(i)})
	}
	for i := common; i < len(after); i++ {
		*patch = append(*patch, Op{Op: "add", Path: path + "/" + strconv.Itoa(i), Value: mustMarshal(after[i])})
	}
}

// Apply returns a new document with the patch applied. The input is not
// mutated. An op addressing a missing path is a history-integrity error:
// patches only make sense against the exact state they were diffed from.
func Apply(doc map[string]any, patch Patch) (map[string]any, error) {
	out, err := deepCopy(doc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	for _, op := range patch {
		if err := applyOp(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOp(doc map[string]any, op Op) error {
	keys := splitPointer(op.Path)
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty patch path", core.ErrIntegrity)
	}

	parent, err := resolveParent(doc, keys[:len(keys)-1], op.Path)
	if err != nil {
		return err
	}
	last := keys[len(keys)-1]

	var value any
	if op.Op == "add" || op.Op == "replace" {
		if err := json.Unmarshal(op.Value, &value); err != nil {
			return fmt.Errorf("%w: malformed patch value at %s: %v", core.ErrIntegrity, op.Path, err)
		}
	}

	switch container := parent.(type) {
	case map[string]any:
		switch op.Op {
		case "add", "replace":
			container[last] = value
		case "remove":
			if _, ok := container[last]; !ok {
				return fmt.Errorf("%w: remove of missing key %s", core.ErrIntegrity, op.Path)
			}
			delete(container, last)
		default:
			return fmt.Errorf("%w: unknown patch op %q", core.ErrIntegrity, op.Op)
		}
		return nil
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 {
			return fmt.Errorf("%w: bad array index at %s", core.ErrIntegrity, op.Path)
		}
		switch op.Op {
		case "replace":
			if idx >= len(container) {
				return fmt.Errorf("%w: replace past end at %s", core.ErrIntegrity, op.Path)
			}
			container[idx] = value
		case "add":
			if idx != len(container) {
				return fmt.Errorf("%w: add must append at %s", core.ErrIntegrity, op.Path)
			}
			if err := setInParent(doc, keys[:len(keys)-1], append(container, value)); err != nil {
				return err
			}
		case "remove":
			if idx != len(container)-1 {
				return fmt.Errorf("%w: remove must trim tail at %s", core.ErrIntegrity, op.Path)
			}
			if err := setInParent(doc, keys[:len(keys)-1], container[:idx]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown patch op %q", core.ErrIntegrity, op.Op)
		}
		return nil
	default:
		return fmt.Errorf("%w: path %s does not address a container", core.ErrIntegrity, op.Path)
	}
}

// resolveParent walks all but the last pointer segment.
func resolveParent(doc map[string]any, keys []string, fullPath string) (any, error) {
	var cur any = doc
	for _, k := range keys {
		switch container := cur.(type) {
		case map[string]any:
			next, ok := container[k]
			if !ok {
				return nil, fmt.Errorf("%w: missing path segment %q in %s", core.ErrIntegrity, k, fullPath)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 || idx >= len(container) {
				return nil, fmt.Errorf("%w: bad array index %q in %s", core.ErrIntegrity, k, fullPath)
			}
			cur = container[idx]
		default:
			return nil, fmt.Errorf("%w: path %s descends into a scalar", core.ErrIntegrity, fullPath)
		}
	}
	return cur, nil
}

// setInParent replaces the container addressed by keys with value. Needed
// when growing or shrinking a slice, since slices are not mutable in place
// through an interface.
func setInParent(doc map[string]any, keys []string, value any) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: cannot replace document root through a patch op", core.ErrIntegrity)
	}
	parent, err := resolveParent(doc, keys[:len(keys)-1], strings.Join(keys, "/"))
	if err != nil {
		return err
	}
	last := keys[len(keys)-1]
	switch container := parent.(type) {
	case map[string]any:
		container[last] = value
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(container) {
			return fmt.Errorf("%w: bad array index %q", core.ErrIntegrity, last)
		}
		container[idx] = value
	default:
		return fmt.Errorf("%w: parent is not a container", core.ErrIntegrity)
	}
	return nil
}

func splitPointer(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		parts[i] = unescapePointer(p)
	}
	return parts
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func unescapePointer(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}

func mustMarshal(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

func deepCopy(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("copying document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copying document: %w", err)
	}
	return out, nil
}
