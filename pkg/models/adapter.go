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

package models

// InterfaceStatus is one entry of an adapter's ordered interface list.
type InterfaceStatus struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	LinkUp    bool   `json:"link_up"`
	SpeedMbps uint64 `json:"speed_mbps,omitempty"`
	MAC       string `json:"mac,omitempty"`
	Neighbor  string `json:"neighbor,omitempty"` // discovered remote system name
}

// DeviceDescription is the normalized output of one adapter poll. A fetch
// failure is reported as Reachable=false with LastError set, never as a
// contract violation.
type DeviceDescription struct {
	Name       string            `json:"name"`
	Serial     string            `json:"serial,omitempty"`
	Alias      string            `json:"alias,omitempty"`
	Model      string            `json:"model,omitempty"`
	Reachable  bool              `json:"reachable"`
	LastError  string            `json:"last_error,omitempty"`
	Interfaces []InterfaceStatus `json:"interfaces,omitempty"`
}
