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

package nmos

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

const connectionControlType = "urn:x-nmos:control:sr-ctrl"

// resourcePaths enumerates the query API collections in fetch order.
var resourcePaths = []struct {
	path string
	typ  models.ResourceType
}{
	{"nodes", models.ResourceNode},
	{"devices", models.ResourceDevice},
	{"flows", models.ResourceFlow},
	{"senders", models.ResourceSender},
	{"receivers", models.ResourceReceiver},
}

func typeForPath(path string) (models.ResourceType, bool) {
	trimmed := strings.Trim(path, "/")
	for _, rp := range resourcePaths {
		if rp.path == trimmed {
			return rp.typ, true
		}
	}

	return "", false
}

// mapResource translates one raw IS-04 resource into the canonical model.
func mapResource(origin string, typ models.ResourceType, raw json.RawMessage) (*models.Resource, error) {
	var qr queryResource
	if err := json.Unmarshal(raw, &qr); err != nil {
		return nil, err
	}

	res := &models.Resource{
		ID:          qr.ID,
		Type:        typ,
		Source:      models.SourceRegistry,
		Origin:      origin,
		Label:       qr.Label,
		Description: qr.Description,
		Name:        qr.Label,
		NodeID:      qr.NodeID,
		DeviceID:    qr.DeviceID,
		FlowID:      qr.FlowID,
		Format:      qr.Format,
		UpdatedAt:   time.Now().UTC(),
		Raw:         raw,
	}

	if typ == models.ResourceNode {
		res.Name = firstNonEmpty(qr.Hostname, qr.Label)
	}

	if typ == models.ResourceFlow {
		res.SenderID = "" // flows link back through sources, senders carry flow_id
		if qr.Format == "" {
			res.Format = qr.MediaType
		}
	}

	if qr.Subscription != nil {
		res.SenderID = qr.Subscription.SenderID
	}

	// Registries carry identity hints in tags; common vendor keys first.
	res.Serial = firstTag(qr.Tags, "urn:x-nmos:tag:serial", "serial", "serial_number")
	if alias := firstTag(qr.Tags, "urn:x-nmos:tag:alias", "alias"); alias != "" {
		res.Alias = alias
	}

	for _, ctrl := range qr.Controls {
		if strings.HasPrefix(ctrl.Type, connectionControlType) {
			res.ControlHref = strings.TrimSuffix(ctrl.Href, "/")
		}
	}

	for i, binding := range qr.InterfaceBindings {
		res.Legs = append(res.Legs, models.Leg{Index: i, Interface: binding, Enabled: true})
	}

	return res, nil
}

func firstTag(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		if vals, ok := tags[key]; ok && len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}

	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
