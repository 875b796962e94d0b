package models

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"xui-vpn-shop/internal/constants"
)

// Client represents one credential inside an inbound's settings.clients list.
// Fields the bot does not manage are kept in Extra and written back untouched.
type Client struct {
	ID         string
	Password   string
	Email      string
	Flow       string
	LimitIP    int
	TotalGB    int64 // bytes, 0 = unlimited
	ExpiryTime int64 // epoch ms, 0 = unlimited
	Extra      map[string]any
}

var clientKnownKeys = map[string]bool{
	"id":         true,
	"password":   true,
	"email":      true,
	"flow":       true,
	"limitIp":    true,
	"totalGB":    true,
	"expiryTime": true,
}

// UnmarshalJSON decodes a client object, tolerating numbers sent as strings or floats
func (c *Client) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Client{
		ID:         rawString(raw["id"]),
		Password:   rawString(raw["password"]),
		Email:      rawString(raw["email"]),
		Flow:       rawString(raw["flow"]),
		LimitIP:    int(rawInt64(raw["limitIp"])),
		TotalGB:    rawInt64(raw["totalGB"]),
		ExpiryTime: rawInt64(raw["expiryTime"]),
	}

	for key, value := range raw {
		if clientKnownKeys[key] {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = v
	}

	return nil
}

// MarshalJSON encodes the client with its extra fields merged back in
func (c Client) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToDictionary())
}

// ToDictionary converts the client to a map for API requests
func (c *Client) ToDictionary() map[string]interface{} {
	result := make(map[string]interface{}, len(c.Extra)+7)
	for k, v := range c.Extra {
		result[k] = v
	}

	result["id"] = c.ID
	result["email"] = c.Email
	result["limitIp"] = c.LimitIP
	result["totalGB"] = c.TotalGB
	result["expiryTime"] = c.ExpiryTime

	// Add optional fields if they exist
	if c.Flow != "" {
		result["flow"] = c.Flow
	}
	if c.Password != "" {
		result["password"] = c.Password
	}

	return result
}

// Credential returns the value used as the connection password
func (c *Client) Credential() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Password
}

// IsUnlimited reports whether the client has no traffic ceiling
func (c *Client) IsUnlimited() bool {
	return c.TotalGB == 0
}

// TotalWholeGB returns the traffic ceiling rounded down to whole gigabytes
func (c *Client) TotalWholeGB() int64 {
	return c.TotalGB / constants.BytesInGB
}

// GenerateSubID generates a random subscription ID
func GenerateSubID() string {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "sub_" + hex.EncodeToString([]byte("fallback"))
	}

	// Convert to base64 and clean up
	b64 := base64.StdEncoding.EncodeToString(buf)
	b64 = strings.ReplaceAll(b64, "=", "")
	b64 = strings.ReplaceAll(b64, "+", "")
	b64 = strings.ReplaceAll(b64, "/", "")

	// Take first 16 characters
	if len(b64) > 16 {
		b64 = b64[:16]
	}

	return b64
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawInt64(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		return int64(f)
	}
	return 0
}
