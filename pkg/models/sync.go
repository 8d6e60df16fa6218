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

// Fixed set of named sync objects. Each is created once at process start and
// versioned independently.
const (
	SyncLog              = "log"
	SyncTopology         = "topology"
	SyncRegistryStatus   = "registrystatus"
	SyncConnectionStatus = "connectionstatus"
	SyncCrosspoint       = "crosspoint"
	SyncDevices          = "devices"
	SyncUIConfig         = "uiconfig"
)

// SyncObjectPermissions maps every sync object name to the permission class
// a session must hold to subscribe.
var SyncObjectPermissions = map[string]PermissionClass{
	SyncLog:              PermissionGlobal,
	SyncTopology:         PermissionGlobal,
	SyncRegistryStatus:   PermissionGlobal,
	SyncConnectionStatus: PermissionGlobal,
	SyncCrosspoint:       PermissionGlobal,
	SyncDevices:          PermissionGlobal,
	SyncUIConfig:         PermissionPublic,
}
