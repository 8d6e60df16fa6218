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

package crosspoint

import (
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

// FlowView is one sender or receiver as presented to operators, with
// overrides applied.
type FlowView struct {
	ID        string   `json:"id"`
	Label     string   `json:"label,omitempty"`
	Format    string   `json:"format,omitempty"`
	Enabled   bool     `json:"enabled"`
	Hidden    bool     `json:"hidden,omitempty"`
	Multicast []string `json:"multicast,omitempty"`
	Sender    string   `json:"sender,omitempty"` // receivers: currently routed sender
	State     string   `json:"state,omitempty"`  // receivers: connection state
}

// Entry is one device identity group in the simplified crosspoint model.
type Entry struct {
	ID        string     `json:"id"`
	Alias     string     `json:"alias"`
	Hidden    bool       `json:"hidden,omitempty"`
	Reachable *bool      `json:"reachable,omitempty"`
	Senders   []FlowView `json:"senders,omitempty"`
	Receivers []FlowView `json:"receivers,omitempty"`
}

// project rebuilds the crosspoint model from the topology store and the
// override table. Pure with respect to its inputs; never mutated directly.
func (o *Orchestrator) project() map[string]Entry {
	model := make(map[string]Entry)

	for _, gid := range o.store.GroupIDs() {
		members := o.store.GroupMembers(gid)
		if len(members) == 0 {
			continue
		}

		entry := Entry{ID: gid}

		for _, res := range members {
			switch res.Type {
			case models.ResourceDevice, models.ResourceNode:
				if entry.Alias == "" {
					entry.Alias = firstNonEmpty(res.Alias, res.Name, res.Label)
				}

				if res.Reachable != nil {
					entry.Reachable = res.Reachable
				}

				o.applyDeviceOverride(&entry, res.ID)
			case models.ResourceSender:
				entry.Senders = append(entry.Senders, o.flowView(res, false))
			case models.ResourceReceiver:
				entry.Receivers = append(entry.Receivers, o.flowView(res, true))
			case models.ResourceFlow:
				// flows surface through their senders
			}
		}

		// Senders and receivers attached to devices of this group but held
		// in other groups never happen: grouping is per device identity and
		// senders/receivers inherit their device's identity fields.
		model[gid] = entry
	}

	return model
}

func (o *Orchestrator) applyDeviceOverride(entry *Entry, resourceID string) {
	ov, ok := o.overrides.Get(resourceID)
	if !ok {
		return
	}

	if ov.Alias != "" {
		entry.Alias = ov.Alias
	}

	if ov.Hidden != nil {
		entry.Hidden = *ov.Hidden
	}
}

func (o *Orchestrator) flowView(res models.Resource, receiver bool) FlowView {
	view := FlowView{
		ID:      res.ID,
		Label:   firstNonEmpty(res.Label, res.Name),
		Format:  res.Format,
		Enabled: true,
	}

	if len(res.Legs) > 0 {
		enabled := false

		for _, leg := range res.Legs {
			if leg.Enabled {
				enabled = true
			}

			if leg.MulticastIP != "" {
				view.Multicast = append(view.Multicast, leg.MulticastIP)
			}
		}

		view.Enabled = enabled
	}

	if ov, ok := o.overrides.Get(res.ID); ok {
		if ov.Enabled != nil {
			view.Enabled = *ov.Enabled
		}

		if ov.Hidden != nil {
			view.Hidden = *ov.Hidden
		}

		if len(ov.Multicast) > 0 {
			view.Multicast = ov.Multicast
		}

		if ov.Alias != "" {
			view.Label = ov.Alias
		}
	}

	if receiver {
		if conn, ok := o.connectionFor(res.ID); ok {
			view.Sender = conn.SenderID
			view.State = string(conn.State)
		}
	}

	return view
}

// projectDevices builds the device list object: every device-typed resource
// with its interface inventory and reachability.
func (o *Orchestrator) projectDevices() map[string]models.Resource {
	devices := make(map[string]models.Resource)

	for _, res := range o.store.Snapshot() {
		if res.Type == models.ResourceDevice {
			res.Raw = nil
			devices[res.ID] = res
		}
	}

	return devices
}

// projectTopology builds the full resource graph object keyed by id.
func (o *Orchestrator) projectTopology() map[string]models.Resource {
	resources := make(map[string]models.Resource)

	for _, res := range o.store.Snapshot() {
		res.Raw = nil
		resources[res.ID] = res
	}

	return resources
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
