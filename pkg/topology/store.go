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

// Package topology owns the merged, deduplicated resource graph fed by
// registry clients and device adapters.
package topology

import (
	"sort"
	"sync"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/identity"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

const eventBuffer = 4096

// Event notifies the orchestrator of one applied topology mutation.
type Event struct {
	Kind       models.UpdateKind
	ResourceID string
	Type       models.ResourceType
	GroupID    string
	Origin     string
}

// Store is the single owner of the merged resource graph. All mutation goes
// through Apply under the store lock; readers get copies.
type Store struct {
	mu        sync.RWMutex
	resources map[string]*models.Resource
	idcfg     identity.Config
	index     *identity.Index
	events    chan Event
	logger    logger.Logger
}

// NewStore creates an empty store using the given dedup configuration.
func NewStore(idcfg identity.Config, log logger.Logger) *Store {
	return &Store{
		resources: make(map[string]*models.Resource),
		idcfg:     idcfg,
		index:     identity.NewIndex(),
		events:    make(chan Event, eventBuffer),
		logger:    log.WithComponent("topology"),
	}
}

// Events exposes the change stream drained by the orchestrator. Events are
// emitted after the mutation is visible in the store.
func (s *Store) Events() <-chan Event {
	return s.events
}

// Apply merges one resource update into the graph. Versions increase
// monotonically per resource; identity group membership is recomputed
// whenever identifying fields change.
func (s *Store) Apply(u models.ResourceUpdate) {
	if u.Resource == nil && u.Kind != models.UpdateRemove {
		return
	}

	var ev Event

	s.mu.Lock()

	switch u.Kind {
	case models.UpdateRemove:
		ev = s.removeLocked(u)
	case models.UpdateAdd, models.UpdateChange:
		ev = s.upsertLocked(u)
	default:
		s.mu.Unlock()
		return
	}

	s.mu.Unlock()

	if ev.ResourceID == "" {
		return
	}

	select {
	case s.events <- ev:
	default:
		s.logger.Warn().
			Str("resource_id", ev.ResourceID).
			Msg("Topology event buffer full, dropping event")
	}
}

func (s *Store) upsertLocked(u models.ResourceUpdate) Event {
	res := *u.Resource // own a copy
	prev, exists := s.resources[res.ID]

	if exists {
		res.Version = prev.Version + 1
	} else {
		res.Version = 1
	}

	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = time.Now().UTC()
	}

	s.resources[res.ID] = &res

	identityChanged := !exists ||
		prev.Serial != res.Serial || prev.Name != res.Name || prev.Alias != res.Alias

	if identityChanged {
		keys := s.idcfg.Keys(res.Serial, res.Name, res.Alias)
		s.index.Assign(res.ID, keys)
	}

	gid, _ := s.index.GroupOf(res.ID)
	if gid == "" && res.DeviceID != "" {
		// Senders and receivers usually carry no identity fields of their
		// own; their change events ride on the parent device's group.
		gid, _ = s.index.GroupOf(res.DeviceID)
	}

	kind := models.UpdateChange

	if !exists {
		kind = models.UpdateAdd
	}

	return Event{
		Kind:       kind,
		ResourceID: res.ID,
		Type:       res.Type,
		GroupID:    gid,
		Origin:     res.Origin,
	}
}

func (s *Store) removeLocked(u models.ResourceUpdate) Event {
	id := ""
	if u.Resource != nil {
		id = u.Resource.ID
	}

	prev, ok := s.resources[id]
	if !ok {
		return Event{}
	}

	gid, _ := s.index.GroupOf(id)
	if gid == "" && prev.DeviceID != "" {
		gid, _ = s.index.GroupOf(prev.DeviceID)
	}

	delete(s.resources, id)
	s.index.Remove(id)

	return Event{
		Kind:       models.UpdateRemove,
		ResourceID: id,
		Type:       prev.Type,
		GroupID:    gid,
		Origin:     prev.Origin,
	}
}

// Get returns a copy of the resource with the given id.
func (s *Store) Get(id string) (models.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.resources[id]
	if !ok {
		return models.Resource{}, false
	}

	return *res, true
}

// Snapshot returns a stable-ordered copy of every resource.
func (s *Store) Snapshot() []models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Resource, 0, len(s.resources))
	for _, res := range s.resources {
		out = append(out, *res)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// GroupOf resolves the identity group owning a resource.
func (s *Store) GroupOf(resourceID string) (string, bool) {
	return s.index.GroupOf(resourceID)
}

// GroupMembers lists the resources of one identity group, stable-ordered.
func (s *Store) GroupMembers(groupID string) []models.Resource {
	ids := s.index.Members(groupID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Resource, 0, len(ids))

	for _, id := range ids {
		if res, ok := s.resources[id]; ok {
			out = append(out, *res)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// GroupIDs lists all identity groups, stable-ordered.
func (s *Store) GroupIDs() []string {
	ids := s.index.GroupIDs()
	sort.Strings(ids)

	return ids
}

// FindGroupByIdentity resolves a serial number, declared name, or alias to
// an identity group, trying fields in dedup precedence order.
func (s *Store) FindGroupByIdentity(value string) (string, bool) {
	norm := identity.Normalize(value)
	if norm == "" {
		return "", false
	}

	precedence := s.idcfg.Precedence
	if len(precedence) == 0 {
		precedence = identity.DefaultConfig().Precedence
	}

	for _, field := range precedence {
		if gid, ok := s.index.Lookup(identity.Key{Field: field, Value: norm}); ok {
			return gid, true
		}
	}

	return "", false
}
