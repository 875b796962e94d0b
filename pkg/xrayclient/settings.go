package xrayclient

import (
	"encoding/json"
	"fmt"

	"xui-vpn-shop/internal/models"
)

// echoedInboundFields are copied verbatim into every update payload.
// Panels replace the whole inbound on update, so a missing field gets reset.
var echoedInboundFields = []string{
	"up", "down", "total", "allTime", "remark", "enable", "expiryTime",
	"trafficReset", "lastTrafficResetTime", "listen", "port", "protocol",
	"streamSettings", "tag", "sniffing",
}

// DecodeClients extracts the client list from the inbound settings blob.
// A missing or unreadable list yields an empty slice.
func DecodeClients(inbound *models.Inbound) []models.Client {
	if inbound == nil {
		return []models.Client{}
	}

	rawClients, ok := Normalize(inbound.Settings)["clients"]
	if !ok && inbound.Raw != nil {
		rawClients, ok = inbound.Raw["clients"]
	}
	if !ok {
		return []models.Client{}
	}

	list := decodeList(rawClients)
	clients := make([]models.Client, 0, len(list))
	for _, item := range list {
		if _, isObject := item.(map[string]interface{}); !isObject {
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var client models.Client
		if err := json.Unmarshal(data, &client); err != nil {
			continue
		}
		clients = append(clients, client)
	}

	return clients
}

// EncodeAndMergeClients builds a full update payload for the inbound with its client
// list replaced. Settings keys other than clients and all echoed inbound fields are
// carried over unchanged.
func EncodeAndMergeClients(inbound *models.Inbound, clients []models.Client) (map[string]interface{}, error) {
	if inbound == nil {
		return nil, fmt.Errorf("nil inbound")
	}

	settings := make(map[string]interface{})
	for k, v := range Normalize(inbound.Settings) {
		settings[k] = v
	}
	if clients == nil {
		clients = []models.Client{}
	}
	settings["clients"] = clients

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	payload := map[string]interface{}{
		"id":       inbound.ID,
		"settings": string(settingsJSON),
	}

	for _, key := range echoedInboundFields {
		if v, ok := inbound.Raw[key]; ok {
			payload[key] = v
		}
	}

	// Typed fallbacks for inbounds that were not built from a panel response
	setDefault(payload, "remark", inbound.Remark)
	setDefault(payload, "port", inbound.Port)
	setDefault(payload, "protocol", inbound.Protocol)
	setDefault(payload, "enable", inbound.Enable)
	setDefault(payload, "tag", inbound.Tag)
	if inbound.StreamSettings != nil {
		setDefault(payload, "streamSettings", inbound.StreamSettings)
	}
	if inbound.Sniffing != nil {
		setDefault(payload, "sniffing", inbound.Sniffing)
	}

	return payload, nil
}

func setDefault(payload map[string]interface{}, key string, value interface{}) {
	if _, ok := payload[key]; !ok {
		payload[key] = value
	}
}
