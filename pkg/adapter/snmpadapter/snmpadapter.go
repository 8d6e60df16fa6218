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

// Package snmpadapter normalizes SNMP-speaking hardware into the adapter
// contract: system identity, the interface table, and LLDP neighbor names.
package snmpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/gosnmp/gosnmp"
)

// TypeName is the declared adapter type resolved by the constructor registry.
const TypeName = "snmp"

const (
	oidSysName   = ".1.3.6.1.2.1.1.5.0"
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSerialNum = ".1.3.6.1.2.1.47.1.1.1.1.11.1" // entPhysicalSerialNum

	oidIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	oidIfSpeed       = ".1.3.6.1.2.1.2.2.1.5"
	oidIfPhysAddress = ".1.3.6.1.2.1.2.2.1.6"
	oidIfOperStatus  = ".1.3.6.1.2.1.2.2.1.8"
	oidIfHighSpeed   = ".1.3.6.1.2.1.31.1.1.1.15"

	oidLLDPRemSysName = ".1.0.8802.1.1.2.1.4.1.1.9"

	// Vendor auxiliary display control, toggled via the devicecontrol route.
	oidAuxDisplay = ".1.3.6.1.4.1.50342.2.1.4.0"

	defaultPort      = 161
	defaultCommunity = "public"
	snmpTimeout      = 5 * time.Second
	ifOperUp         = 1
)

var errUnexpectedPDU = errors.New("unexpected snmp pdu")

// Adapter polls one SNMP device.
type Adapter struct {
	cfg    models.DeviceConfig
	logger logger.Logger
}

// New is the registered constructor for TypeName.
func New(cfg models.DeviceConfig, log logger.Logger) (adapter.Adapter, error) {
	if cfg.Address == "" {
		return nil, errors.New("snmp adapter requires an address")
	}

	return &Adapter{cfg: cfg, logger: log.WithComponent("snmp-adapter")}, nil
}

// Describe performs one poll cycle and returns the normalized description.
func (a *Adapter) Describe(ctx context.Context) (*models.DeviceDescription, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func(conn net.Conn) {
		if conn != nil {
			_ = conn.Close()
		}
	}(client.Conn)

	desc := &models.DeviceDescription{Name: a.cfg.Name, Reachable: true}

	if err := a.fillSystem(client, desc); err != nil {
		return nil, err
	}

	ifaces, err := a.fetchInterfaces(client)
	if err != nil {
		return nil, err
	}

	a.fillNeighbors(client, ifaces)

	indexes := make([]int, 0, len(ifaces))
	for idx := range ifaces {
		indexes = append(indexes, idx)
	}

	sort.Ints(indexes)

	for _, idx := range indexes {
		desc.Interfaces = append(desc.Interfaces, *ifaces[idx])
	}

	return desc, nil
}

// Control implements the optional adapter controller for the auxiliary
// display toggle.
func (a *Adapter) Control(ctx context.Context, action string, params json.RawMessage) error {
	if action != "display" {
		return fmt.Errorf("%w: %s", adapter.ErrUnsupportedAction, action)
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &body); err != nil {
			return err
		}
	}

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if client.Conn != nil {
			_ = client.Conn.Close()
		}
	}()

	value := 0
	if body.Enabled {
		value = 1
	}

	_, err = client.Set([]gosnmp.SnmpPDU{{
		Name:  oidAuxDisplay,
		Type:  gosnmp.Integer,
		Value: value,
	}})

	return err
}

// Close releases nothing persistent; connections are per poll.
func (*Adapter) Close() error { return nil }

func (a *Adapter) connect(ctx context.Context) (*gosnmp.GoSNMP, error) {
	host := a.cfg.Address
	port := uint16(defaultPort)

	if h, p, err := net.SplitHostPort(a.cfg.Address); err == nil {
		host = h

		if parsed, perr := strconv.ParseUint(p, 10, 16); perr == nil {
			port = uint16(parsed)
		}
	}

	community := a.cfg.Community
	if community == "" {
		community = defaultCommunity
	}

	client := &gosnmp.GoSNMP{
		Target:    host,
		Port:      port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   snmpTimeout,
		Retries:   1,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", a.cfg.Address, err)
	}

	return client, nil
}

func (a *Adapter) fillSystem(client *gosnmp.GoSNMP, desc *models.DeviceDescription) error {
	result, err := client.Get([]string{oidSysName, oidSysDescr, oidSerialNum})
	if err != nil {
		return fmt.Errorf("snmp get system: %w", err)
	}

	for _, v := range result.Variables {
		switch v.Name {
		case oidSysName:
			if s := pduString(v); s != "" {
				desc.Name = s
			}
		case oidSysDescr:
			desc.Model = pduString(v)
		case oidSerialNum:
			desc.Serial = pduString(v)
		}
	}

	return nil
}

func (a *Adapter) fetchInterfaces(client *gosnmp.GoSNMP) (map[int]*models.InterfaceStatus, error) {
	ifaces := make(map[int]*models.InterfaceStatus)

	get := func(idx int) *models.InterfaceStatus {
		st, ok := ifaces[idx]
		if !ok {
			st = &models.InterfaceStatus{Index: idx}
			ifaces[idx] = st
		}

		return st
	}

	walks := []struct {
		oid   string
		apply func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU)
	}{
		{oidIfDescr, func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU) {
			st.Name = pduString(pdu)
		}},
		{oidIfOperStatus, func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU) {
			st.LinkUp = pduInt(pdu) == ifOperUp
		}},
		{oidIfSpeed, func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU) {
			if st.SpeedMbps == 0 {
				st.SpeedMbps = uint64(pduInt(pdu)) / 1_000_000
			}
		}},
		{oidIfHighSpeed, func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU) {
			if mbps := uint64(pduInt(pdu)); mbps > 0 {
				st.SpeedMbps = mbps
			}
		}},
		{oidIfPhysAddress, func(st *models.InterfaceStatus, pdu gosnmp.SnmpPDU) {
			st.MAC = pduMAC(pdu)
		}},
	}

	for _, w := range walks {
		err := client.BulkWalk(w.oid, func(pdu gosnmp.SnmpPDU) error {
			idx, err := lastIndex(pdu.Name)
			if err != nil {
				return nil // skip malformed rows
			}

			w.apply(get(idx), pdu)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("snmp walk %s: %w", w.oid, err)
		}
	}

	return ifaces, nil
}

// fillNeighbors attaches LLDP remote system names where present. Devices
// without the LLDP MIB simply yield no neighbors.
func (a *Adapter) fillNeighbors(client *gosnmp.GoSNMP, ifaces map[int]*models.InterfaceStatus) {
	err := client.BulkWalk(oidLLDPRemSysName, func(pdu gosnmp.SnmpPDU) error {
		// lldpRemSysName index: lldpRemTimeMark.lldpRemLocalPortNum.lldpRemIndex
		parts := strings.Split(strings.TrimPrefix(pdu.Name, oidLLDPRemSysName+"."), ".")
		if len(parts) != 3 {
			return nil
		}

		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil
		}

		if st, ok := ifaces[port]; ok {
			st.Neighbor = pduString(pdu)
		}

		return nil
	})
	if err != nil {
		a.logger.Debug().Err(err).Str("device", a.cfg.Name).Msg("LLDP walk failed")
	}
}

func pduString(pdu gosnmp.SnmpPDU) string {
	if b, ok := pdu.Value.([]byte); ok {
		return strings.TrimSpace(string(b))
	}

	if s, ok := pdu.Value.(string); ok {
		return strings.TrimSpace(s)
	}

	return ""
}

func pduInt(pdu gosnmp.SnmpPDU) int64 {
	switch v := pdu.Value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

func pduMAC(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) != 6 {
		return ""
	}

	parts := make([]string, 6)
	for i, octet := range b {
		parts[i] = fmt.Sprintf("%02x", octet)
	}

	return strings.Join(parts, ":")
}

func lastIndex(oid string) (int, error) {
	dot := strings.LastIndex(oid, ".")
	if dot < 0 || dot == len(oid)-1 {
		return 0, errUnexpectedPDU
	}

	return strconv.Atoi(oid[dot+1:])
}
