/*
 * Copyright 2026 Avassdal Media Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package syncobj

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	errBadPatchPath  = errors.New("patch path does not address the snapshot")
	errBadPatchOp    = errors.New("unknown patch op")
	errNotNormalized = errors.New("value is not JSON-serializable")
)

const (
	opAdd     = "add"
	opReplace = "replace"
	opRemove  = "remove"
)

// Normalize converts an arbitrary Go value into a plain JSON tree
// (map[string]interface{}, []interface{}, scalars) so snapshots from
// different owners diff uniformly.
func Normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNotNormalized, err)
	}

	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: %w", errNotNormalized, err)
	}

	return tree, nil
}

// Diff computes the ordered patch operations transforming prev into next.
// Both inputs must be normalized JSON trees. An empty result means the
// snapshots are structurally identical.
func Diff(prev, next interface{}) []models.PatchOp {
	var ops []models.PatchOp

	diffValue(&ops, "", prev, next)

	return ops
}

func diffValue(ops *[]models.PatchOp, path string, prev, next interface{}) {
	switch pv := prev.(type) {
	case map[string]interface{}:
		if nv, ok := next.(map[string]interface{}); ok {
			diffMap(ops, path, pv, nv)
			return
		}
	case []interface{}:
		if nv, ok := next.([]interface{}); ok {
			diffSlice(ops, path, pv, nv)
			return
		}
	}

	if reflect.DeepEqual(prev, next) {
		return
	}

	*ops = append(*ops, models.PatchOp{Op: opReplace, Path: path, Value: next})
}

func diffMap(ops *[]models.PatchOp, path string, prev, next map[string]interface{}) {
	keys := make([]string, 0, len(prev)+len(next))
	seen := make(map[string]struct{}, len(prev)+len(next))

	for k := range prev {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}

	for k := range next {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		child := path + "/" + escapePointer(k)
		pv, inPrev := prev[k]
		nv, inNext := next[k]

		switch {
		case inPrev && !inNext:
			*ops = append(*ops, models.PatchOp{Op: opRemove, Path: child})
		case !inPrev && inNext:
			*ops = append(*ops, models.PatchOp{Op: opAdd, Path: child, Value: nv})
		default:
			diffValue(ops, child, pv, nv)
		}
	}
}

func diffSlice(ops *[]models.PatchOp, path string, prev, next []interface{}) {
	common := len(prev)
	if len(next) < common {
		common = len(next)
	}

	for i := 0; i < common; i++ {
		diffValue(ops, path+"/"+strconv.Itoa(i), prev[i], next[i])
	}

	for i := common; i < len(next); i++ {
		*ops = append(*ops, models.PatchOp{Op: opAdd, Path: path + "/" + strconv.Itoa(i), Value: next[i]})
	}

	// Remove trailing elements highest index first so earlier paths stay valid.
	for i := len(prev) - 1; i >= common; i-- {
		*ops = append(*ops, models.PatchOp{Op: opRemove, Path: path + "/" + strconv.Itoa(i)})
	}
}

// Apply replays patch operations onto a normalized tree, returning the new
// tree. Used by tests to prove snapshot+patch replay equivalence; clients
// implement the same semantics.
func Apply(tree interface{}, ops []models.PatchOp) (interface{}, error) {
	var err error

	for _, op := range ops {
		tree, err = applyOne(tree, op)
		if err != nil {
			return nil, err
		}
	}

	return tree, nil
}

func applyOne(tree interface{}, op models.PatchOp) (interface{}, error) {
	if op.Path == "" {
		switch op.Op {
		case opReplace, opAdd:
			return op.Value, nil
		case opRemove:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %s", errBadPatchOp, op.Op)
		}
	}

	segments := strings.Split(strings.TrimPrefix(op.Path, "/"), "/")

	return applyAt(tree, segments, op)
}

func applyAt(node interface{}, segments []string, op models.PatchOp) (interface{}, error) {
	seg := unescapePointer(segments[0])
	last := len(segments) == 1

	switch n := node.(type) {
	case map[string]interface{}:
		if last {
			switch op.Op {
			case opAdd, opReplace:
				n[seg] = op.Value
			case opRemove:
				delete(n, seg)
			default:
				return nil, fmt.Errorf("%w: %s", errBadPatchOp, op.Op)
			}

			return n, nil
		}

		child, ok := n[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errBadPatchPath, seg)
		}

		updated, err := applyAt(child, segments[1:], op)
		if err != nil {
			return nil, err
		}

		n[seg] = updated

		return n, nil
	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: %s", errBadPatchPath, seg)
		}

		if last {
			switch op.Op {
			case opAdd:
				if idx != len(n) {
					return nil, fmt.Errorf("%w: add at %d", errBadPatchPath, idx)
				}

				return append(n, op.Value), nil
			case opReplace:
				if idx >= len(n) {
					return nil, fmt.Errorf("%w: replace at %d", errBadPatchPath, idx)
				}

				n[idx] = op.Value

				return n, nil
			case opRemove:
				if idx >= len(n) {
					return nil, fmt.Errorf("%w: remove at %d", errBadPatchPath, idx)
				}

				return append(n[:idx], n[idx+1:]...), nil
			default:
				return nil, fmt.Errorf("%w: %s", errBadPatchOp, op.Op)
			}
		}

		if idx >= len(n) {
			return nil, fmt.Errorf("%w: %s", errBadPatchPath, seg)
		}

		updated, err := applyAt(n[idx], segments[1:], op)
		if err != nil {
			return nil, err
		}

		n[idx] = updated

		return n, nil
	default:
		return nil, fmt.Errorf("%w: %s", errBadPatchPath, seg)
	}
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")

	return strings.ReplaceAll(s, "/", "~1")
}

func unescapePointer(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")

	return strings.ReplaceAll(s, "~0", "~")
}
