package xrayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
)

// lookupVariant is one way of fetching a single inbound
type lookupVariant struct {
	method string
	path   string
}

func inboundLookupVariants(id int) []lookupVariant {
	return []lookupVariant{
		{method: http.MethodGet, path: fmt.Sprintf("panel/inbound/get/%d", id)},
		{method: http.MethodGet, path: fmt.Sprintf("panel/inbound/get?id=%d", id)},
	}
}

// ListInbounds gets all inbounds. Unexpected response shapes yield an empty list;
// only login failures and cancellation are returned as errors.
func (c *Client) ListInbounds(ctx context.Context) ([]models.Inbound, error) {
	resp, err := c.do(ctx, http.MethodPost, "panel/inbound/list", map[string]interface{}{})
	if err != nil {
		if isFatal(ctx, err) {
			return nil, err
		}
		c.logger.Warnf("List inbounds failed: %v", err)
		return []models.Inbound{}, nil
	}

	parsed, err := decodeJSON(resp.Body())
	if err != nil {
		c.logger.Warnf("Failed to parse inbounds response: %v", err)
		return []models.Inbound{}, nil
	}

	var items []interface{}
	switch t := parsed.(type) {
	case map[string]interface{}:
		items = decodeList(t["obj"])
	case []interface{}:
		items = t
	}

	inbounds := make([]models.Inbound, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		inbounds = append(inbounds, inboundFromMap(m))
	}

	return inbounds, nil
}

// GetInbound finds an inbound by id, first in the list and then through the direct
// fetch endpoints. Exhausting every source yields *errors.NotFoundError.
func (c *Client) GetInbound(ctx context.Context, id int) (*models.Inbound, error) {
	inbounds, err := c.ListInbounds(ctx)
	if err != nil {
		return nil, err
	}

	for i := range inbounds {
		if inbounds[i].ID == id {
			return &inbounds[i], nil
		}
	}

	var failures []error
	for _, variant := range inboundLookupVariants(id) {
		resp, err := c.do(ctx, variant.method, variant.path, nil)
		if err != nil {
			if isFatal(ctx, err) {
				return nil, err
			}
			failures = append(failures, err)
			continue
		}

		if m, ok := pickInbound(resp.Body(), id); ok {
			inbound := inboundFromMap(m)
			return &inbound, nil
		}

		failures = append(failures, &apperrors.XrayAPIError{
			Operation: variant.method + " " + variant.path,
			Status:    resp.StatusCode(),
			Message:   "response carries no inbound object",
		})
	}

	c.logger.Debugf("Inbound %d not found: %v", id, errors.Join(failures...))
	return nil, &apperrors.NotFoundError{Resource: "inbound", Key: strconv.Itoa(id)}
}

// pickInbound extracts the inbound object from a single-inbound response envelope
func pickInbound(body []byte, id int) (map[string]interface{}, bool) {
	envelope := Normalize(body)

	candidate := envelope
	for _, key := range []string{"obj", "data", "inbound"} {
		if m := Normalize(envelope[key]); len(m) > 0 {
			candidate = m
			break
		}
	}

	if rawID, ok := candidate["id"]; ok {
		return candidate, toInt64(rawID) == int64(id)
	}
	_, hasSettings := candidate["settings"]
	return candidate, hasSettings
}

// inboundFromMap builds the typed view over a raw inbound object
func inboundFromMap(m map[string]interface{}) models.Inbound {
	inbound := models.Inbound{
		ID:             int(toInt64(m["id"])),
		Port:           int(toInt64(m["port"])),
		Protocol:       stringField(m, "protocol"),
		Remark:         stringField(m, "remark"),
		Enable:         boolFromAny(m["enable"], true),
		Tag:            stringField(m, "tag"),
		Settings:       m["settings"],
		StreamSettings: m["streamSettings"],
		Sniffing:       m["sniffing"],
		Raw:            m,
	}

	if stats, ok := m["clientStats"]; ok && stats != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = json.Unmarshal(data, &inbound.ClientStats)
		}
	}

	return inbound
}
