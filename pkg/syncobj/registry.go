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

// Package syncobj implements the named, versioned state containers delivered
// to clients as snapshot plus ordered patches.
package syncobj

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	// ErrUnknownObject is returned for subscriptions to unregistered names.
	ErrUnknownObject = errors.New("unknown sync object")
	// ErrPermissionDenied is returned when the subscriber's class is insufficient.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyRegistered guards double registration at startup.
	ErrAlreadyRegistered = errors.New("sync object already registered")
)

// Subscriber is a delivery target for one session. Send failures mark the
// subscriber dead; the registry drops it from every object.
type Subscriber interface {
	Permission() models.PermissionClass
	SendSync(msg *models.SyncMessage) error
}

// Object is one named state container. The snapshot tree and sequence
// counter are mutated only under the object's own lock, which also orders
// deliveries so every subscriber observes the same patch order.
type Object struct {
	name string
	perm models.PermissionClass

	mu   sync.Mutex
	tree interface{}
	seq  uint64
	subs map[Subscriber]string // subscriber -> echoed objectId
}

// Registry holds the fixed set of sync objects created at process start.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
	logger  logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		objects: make(map[string]*Object),
		logger:  log.WithComponent("syncobj"),
	}
}

// Register creates an object with its permission class and initial snapshot.
func (r *Registry) Register(name string, perm models.PermissionClass, initial interface{}) error {
	tree, err := Normalize(initial)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.objects[name] = &Object{
		name: name,
		perm: perm,
		tree: tree,
		subs: make(map[Subscriber]string),
	}

	return nil
}

// Publish applies a mutation to the named object under its exclusive lock.
// The mutate function receives the current snapshot tree and returns the
// next full state (any JSON-serializable value). The sequence counter always
// advances; a structurally empty diff is not broadcast.
func (r *Registry) Publish(name string, mutate func(current interface{}) interface{}) error {
	obj, err := r.object(name)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	next, err := Normalize(mutate(obj.tree))
	if err != nil {
		return err
	}

	ops := Diff(obj.tree, next)
	obj.tree = next
	obj.seq++

	if len(ops) == 0 {
		return nil
	}

	var dead []Subscriber

	for sub, objectID := range obj.subs {
		if !sub.Permission().Satisfies(obj.perm) {
			continue
		}

		msg := &models.SyncMessage{
			Type:     models.MsgSync,
			Channel:  obj.name,
			ObjectID: objectID,
			Seq:      obj.seq,
			Patch:    ops,
		}

		if err := sub.SendSync(msg); err != nil {
			dead = append(dead, sub)
		}
	}

	for _, sub := range dead {
		delete(obj.subs, sub)
		r.logger.Debug().Str("object", obj.name).Msg("Dropped dead subscriber during publish")
	}

	return nil
}

// Snapshot returns the current tree and sequence of an object.
func (r *Registry) Snapshot(name string) (interface{}, uint64, error) {
	obj, err := r.object(name)
	if err != nil {
		return nil, 0, err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	return obj.tree, obj.seq, nil
}

// Subscribe checks the subscriber's permission, synchronously delivers the
// full current snapshot, then enrolls the subscriber for every subsequent
// patch. The object lock spans both steps so no patch can slip between the
// snapshot and the first forwarded delta.
func (r *Registry) Subscribe(name, objectID string, sub Subscriber) error {
	obj, err := r.object(name)
	if err != nil {
		return err
	}

	if !sub.Permission().Satisfies(obj.perm) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, name)
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	msg := &models.SyncMessage{
		Type:     models.MsgSync,
		Channel:  obj.name,
		ObjectID: objectID,
		Seq:      obj.seq,
		First:    true,
		Data:     obj.tree,
	}

	if err := sub.SendSync(msg); err != nil {
		return err
	}

	obj.subs[sub] = objectID

	return nil
}

// Unsubscribe atomically revokes every subscription held by sub.
func (r *Registry) Unsubscribe(sub Subscriber) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, obj := range r.objects {
		obj.mu.Lock()
		delete(obj.subs, sub)
		obj.mu.Unlock()
	}
}

func (r *Registry) object(name string) (*Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}

	return obj, nil
}
