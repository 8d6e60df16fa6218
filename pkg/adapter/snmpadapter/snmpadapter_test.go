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

package snmpadapter

import (
	"testing"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(models.DeviceConfig{Name: "switch-a"}, logger.NewTestLogger())
	require.Error(t, err)

	a, err := New(models.DeviceConfig{Name: "switch-a", Address: "10.0.0.5"}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestPDUString(t *testing.T) {
	assert.Equal(t, "core-sw-1", pduString(gosnmp.SnmpPDU{Value: []byte(" core-sw-1\n")}))
	assert.Equal(t, "core-sw-1", pduString(gosnmp.SnmpPDU{Value: "core-sw-1"}))
	assert.Empty(t, pduString(gosnmp.SnmpPDU{Value: 42}))
}

func TestPDUInt(t *testing.T) {
	assert.EqualValues(t, 1, pduInt(gosnmp.SnmpPDU{Value: 1}))
	assert.EqualValues(t, 100000, pduInt(gosnmp.SnmpPDU{Value: uint32(100000)}))
	assert.EqualValues(t, 0, pduInt(gosnmp.SnmpPDU{Value: "up"}))
}

func TestPDUMAC(t *testing.T) {
	assert.Equal(t, "00:1b:21:3c:4d:5e",
		pduMAC(gosnmp.SnmpPDU{Value: []byte{0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e}}))
	assert.Empty(t, pduMAC(gosnmp.SnmpPDU{Value: []byte{0x00, 0x1b}}))
	assert.Empty(t, pduMAC(gosnmp.SnmpPDU{Value: "not-bytes"}))
}

func TestLastIndex(t *testing.T) {
	idx, err := lastIndex(oidIfDescr + ".49")
	require.NoError(t, err)
	assert.Equal(t, 49, idx)

	_, err = lastIndex("49")
	assert.Error(t, err)

	_, err = lastIndex(oidIfDescr + ".")
	assert.Error(t, err)
}
