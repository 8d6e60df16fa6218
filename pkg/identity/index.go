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

package identity

import "sync"

// Group is a set of resources believed to represent one physical device.
type Group struct {
	ID      string
	Members map[string]struct{}
	Keys    map[Key]struct{}
}

func newGroup(id string) *Group {
	return &Group{
		ID:      id,
		Members: make(map[string]struct{}),
		Keys:    make(map[Key]struct{}),
	}
}

// Index maps identity keys to device identity groups. Every resource belongs
// to exactly one group; assigning a resource whose keys span several groups
// merges those groups without dropping any member.
type Index struct {
	mu         sync.RWMutex
	byKey      map[Key]string
	groups     map[string]*Group
	byResource map[string]string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byKey:      make(map[Key]string),
		groups:     make(map[string]*Group),
		byResource: make(map[string]string),
	}
}

// Assign places resourceID into the group matching keys, creating or merging
// groups as needed. The first key in precedence order names a new group.
// Returns the resulting group id.
func (ix *Index) Assign(resourceID string, keys []Key) string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Collect every existing group any candidate key already points at,
	// preserving key precedence order.
	var hits []*Group

	seen := make(map[string]struct{})

	for _, k := range keys {
		if gid, ok := ix.byKey[k]; ok {
			if _, dup := seen[gid]; !dup {
				seen[gid] = struct{}{}
				hits = append(hits, ix.groups[gid])
			}
		}
	}

	var target *Group

	switch {
	case len(hits) == 0:
		id := resourceID
		if len(keys) > 0 {
			id = keys[0].String()
		}

		target = newGroup(id)
		ix.groups[id] = target
	default:
		target = hits[0]
		for _, g := range hits[1:] {
			ix.mergeLocked(target, g)
		}
	}

	// Detach from a previous group when identity fields changed.
	if prev, ok := ix.byResource[resourceID]; ok && prev != target.ID {
		ix.removeMemberLocked(resourceID, prev)
	}

	target.Members[resourceID] = struct{}{}
	ix.byResource[resourceID] = target.ID

	for _, k := range keys {
		target.Keys[k] = struct{}{}
		ix.byKey[k] = target.ID
	}

	return target.ID
}

// Remove detaches resourceID from its group, deleting the group when empty.
func (ix *Index) Remove(resourceID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	gid, ok := ix.byResource[resourceID]
	if !ok {
		return
	}

	delete(ix.byResource, resourceID)
	ix.removeMemberLocked(resourceID, gid)
}

// GroupOf returns the group id owning resourceID.
func (ix *Index) GroupOf(resourceID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	gid, ok := ix.byResource[resourceID]

	return gid, ok
}

// Lookup resolves an identity key to its group id.
func (ix *Index) Lookup(k Key) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	gid, ok := ix.byKey[k]

	return gid, ok
}

// Members returns the resource ids of a group.
func (ix *Index) Members(groupID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	g, ok := ix.groups[groupID]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(g.Members))
	for id := range g.Members {
		out = append(out, id)
	}

	return out
}

// GroupIDs lists all live groups.
func (ix *Index) GroupIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.groups))
	for id := range ix.groups {
		out = append(out, id)
	}

	return out
}

func (ix *Index) mergeLocked(dst, src *Group) {
	for id := range src.Members {
		dst.Members[id] = struct{}{}
		ix.byResource[id] = dst.ID
	}

	for k := range src.Keys {
		dst.Keys[k] = struct{}{}
		ix.byKey[k] = dst.ID
	}

	delete(ix.groups, src.ID)
}

func (ix *Index) removeMemberLocked(resourceID, groupID string) {
	g, ok := ix.groups[groupID]
	if !ok {
		return
	}

	delete(g.Members, resourceID)

	if len(g.Members) == 0 {
		for k := range g.Keys {
			delete(ix.byKey, k)
		}

		delete(ix.groups, groupID)
	}
}
