package xrayclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-vpn-shop/internal/models"
)

func scenarioInbound(t *testing.T) *models.Inbound {
	t.Helper()
	parsed, err := decodeJSON([]byte(realityInboundJSON))
	require.NoError(t, err)
	inbound := inboundFromMap(parsed.(map[string]interface{}))
	return &inbound
}

func TestDecodeClients(t *testing.T) {
	inbound := scenarioInbound(t)

	clients := DecodeClients(inbound)
	require.Len(t, clients, 2)

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", clients[0].ID)
	assert.Equal(t, "alice", clients[0].Email)
	assert.Equal(t, "xtls-rprx-vision", clients[0].Flow)
	assert.Equal(t, 2, clients[0].LimitIP)
	assert.True(t, clients[0].IsUnlimited())
	assert.Equal(t, "sub-alice", clients[0].Extra["subId"])

	assert.Equal(t, int64(10*1024*1024*1024), clients[1].TotalGB)
	assert.Equal(t, int64(1767225600000), clients[1].ExpiryTime)
}

func TestDecodeClientsTolerantShapes(t *testing.T) {
	t.Run("object settings with string numbers", func(t *testing.T) {
		inbound := &models.Inbound{Settings: map[string]interface{}{
			"clients": []interface{}{
				map[string]interface{}{"id": "u1", "email": "a", "totalGB": "1073741824", "limitIp": 1.0},
			},
		}}
		clients := DecodeClients(inbound)
		require.Len(t, clients, 1)
		assert.Equal(t, int64(1073741824), clients[0].TotalGB)
		assert.Equal(t, 1, clients[0].LimitIP)
	})

	t.Run("garbage settings", func(t *testing.T) {
		clients := DecodeClients(&models.Inbound{Settings: "{{not json"})
		assert.NotNil(t, clients)
		assert.Empty(t, clients)
	})

	t.Run("clients at the top level", func(t *testing.T) {
		inbound := &models.Inbound{Raw: map[string]interface{}{
			"clients": []interface{}{map[string]interface{}{"password": "pw", "email": "trojan"}},
		}}
		clients := DecodeClients(inbound)
		require.Len(t, clients, 1)
		assert.Equal(t, "pw", clients[0].Credential())
	})

	t.Run("non-object entries are skipped", func(t *testing.T) {
		inbound := &models.Inbound{Settings: `{"clients":["x", 3, {"id":"u2","email":"b"}]}`}
		clients := DecodeClients(inbound)
		require.Len(t, clients, 1)
		assert.Equal(t, "b", clients[0].Email)
	})

	t.Run("nil inbound", func(t *testing.T) {
		assert.Empty(t, DecodeClients(nil))
	})
}

func TestEncodeAndMergeClientsRoundTrip(t *testing.T) {
	inbound := scenarioInbound(t)

	clients := []models.Client{
		{
			ID:         "aaaaaaaa-0000-0000-0000-000000000001",
			Email:      "carol",
			Flow:       "xtls-rprx-vision",
			LimitIP:    2,
			TotalGB:    30 * 1024 * 1024 * 1024,
			ExpiryTime: 1767225600000,
			Extra:      map[string]any{"enable": true, "subId": "sub-carol"},
		},
		{
			ID:    "aaaaaaaa-0000-0000-0000-000000000002",
			Email: "dave",
		},
	}

	payload, err := EncodeAndMergeClients(inbound, clients)
	require.NoError(t, err)

	decoded := DecodeClients(&models.Inbound{Settings: payload["settings"]})
	assert.Equal(t, clients, decoded)

	settings := Normalize(payload["settings"])
	assert.Equal(t, "none", settings["decryption"])
	assert.Contains(t, settings, "fallbacks")
}

func TestEncodeAndMergeClientsEchoesInboundFields(t *testing.T) {
	inbound := scenarioInbound(t)

	payload, err := EncodeAndMergeClients(inbound, DecodeClients(inbound))
	require.NoError(t, err)

	for key, original := range inbound.Raw {
		if key == "settings" || key == "clientStats" {
			continue
		}
		want, err := json.Marshal(original)
		require.NoError(t, err)
		got, err := json.Marshal(payload[key])
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "field %s", key)
	}

	assert.NotContains(t, payload, "clientStats")
	assert.IsType(t, "", payload["settings"])
}

func TestEncodeAndMergeClientsTypedFallbacks(t *testing.T) {
	inbound := &models.Inbound{
		ID:             9,
		Port:           443,
		Protocol:       "vless",
		Remark:         "manual",
		Enable:         true,
		Tag:            "inbound-443",
		Settings:       `{"clients":[]}`,
		StreamSettings: `{"security":"reality"}`,
	}

	payload, err := EncodeAndMergeClients(inbound, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, payload["id"])
	assert.Equal(t, 443, payload["port"])
	assert.Equal(t, "manual", payload["remark"])
	assert.Equal(t, true, payload["enable"])
	assert.Equal(t, `{"security":"reality"}`, payload["streamSettings"])
	assert.NotContains(t, payload, "sniffing")
	assert.Equal(t, `{"clients":[]}`, payload["settings"])
}
