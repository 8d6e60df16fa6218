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

package logger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultRingSize = 500

// Entry is one retained log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RingHook retains the most recent log entries in a bounded ring and
// notifies an optional listener after each append. It backs the "log" sync
// object.
type RingHook struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	notify  func()
}

// NewRingHook creates a hook retaining up to size entries; size <= 0 uses
// the default.
func NewRingHook(size int) *RingHook {
	if size <= 0 {
		size = defaultRingSize
	}

	return &RingHook{size: size}
}

// SetNotify registers a listener invoked (outside the hook lock) after each
// appended entry.
func (h *RingHook) SetNotify(fn func()) {
	h.mu.Lock()
	h.notify = fn
	h.mu.Unlock()
}

// Run implements zerolog.Hook.
func (h *RingHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level == zerolog.NoLevel || message == "" {
		return
	}

	h.mu.Lock()
	h.entries = append(h.entries, Entry{Time: time.Now().UTC(), Level: level.String(), Message: message})

	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}

	notify := h.notify
	h.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Snapshot returns a copy of the retained entries, oldest first.
func (h *RingHook) Snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)

	return out
}
