package xrayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
)

// AddClientRequest describes a client to create in an inbound
type AddClientRequest struct {
	InboundID    int
	Email        string
	LimitIP      int
	TotalGB      float64 // 0 = unlimited
	ExpiryTimeMs int64   // 0 = never
	Flow         string
	Wait         RetryPolicy
}

// addClientVariant is one spelling of the add-client endpoint.
// Forks that take the inbound id in the path reject it in the body.
type addClientVariant struct {
	path     string
	idInPath bool
}

func addClientVariants(inboundID int) []addClientVariant {
	return []addClientVariant{
		{path: "panel/inbound/addClient"},
		{path: fmt.Sprintf("panel/inbound/addClient/%d", inboundID), idInPath: true},
		{path: "xui/inbound/addClient"},
		{path: "inbound/addClient"},
	}
}

// AddClient creates a client and waits for its connection URI.
// An email already present in the inbound returns the existing client's URI.
func (c *Client) AddClient(ctx context.Context, req AddClientRequest) (string, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return "", &apperrors.ValidationError{Field: "email", Message: "cannot be empty"}
	}

	created, err := c.createClient(ctx, req, email)
	if err != nil {
		return "", err
	}
	if !created {
		c.logger.Infof("Client %s already exists in inbound %d, returning its link", email, req.InboundID)
	}

	return c.ResolveLink(ctx, req.InboundID, email, req.Wait)
}

// createClient runs under the inbound lock and reports whether a new client was submitted
func (c *Client) createClient(ctx context.Context, req AddClientRequest, email string) (bool, error) {
	unlock := c.locks.lock(req.InboundID)
	defer unlock()

	inbounds, err := c.ListInbounds(ctx)
	if err != nil {
		return false, err
	}

	var inbound *models.Inbound
	available := make([]int, 0, len(inbounds))
	for i := range inbounds {
		available = append(available, inbounds[i].ID)
		if inbounds[i].ID == req.InboundID {
			inbound = &inbounds[i]
		}
	}
	if inbound == nil {
		return false, &apperrors.NotFoundError{
			Resource:  "inbound",
			Key:       strconv.Itoa(req.InboundID),
			Available: available,
		}
	}

	if _, exists := findClient(DecodeClients(inbound), email); exists {
		return false, nil
	}

	client := models.Client{
		ID:         uuid.NewString(),
		Email:      email,
		Flow:       strings.TrimSpace(req.Flow),
		LimitIP:    req.LimitIP,
		TotalGB:    int64(req.TotalGB * constants.BytesInGB),
		ExpiryTime: req.ExpiryTimeMs,
		Extra: map[string]any{
			"enable": true,
			"subId":  models.GenerateSubID(),
			"tgId":   "",
		},
	}

	settings, err := json.Marshal(map[string]interface{}{"clients": []models.Client{client}})
	if err != nil {
		return false, fmt.Errorf("failed to encode client settings: %w", err)
	}

	var (
		failures     []error
		lastResponse string
	)
	for _, variant := range addClientVariants(req.InboundID) {
		body := map[string]interface{}{"settings": string(settings)}
		if !variant.idInPath {
			body["id"] = req.InboundID
		}

		c.logger.Debugf("Adding client %s via %s", email, variant.path)
		resp, err := c.doWrite(ctx, http.MethodPost, variant.path, body)
		if resp != nil {
			lastResponse = truncate(string(resp.Body()), 512)
		}
		if err != nil {
			if isFatal(ctx, err) {
				return false, err
			}
			failures = append(failures, err)

			// the panel may have applied a write whose response was lost
			var apiErr *apperrors.XrayAPIError
			if !errors.As(err, &apiErr) && c.clientPresent(ctx, req.InboundID, email) {
				c.logger.Warnf("Client %s appeared in inbound %d after a failed request to %s", email, req.InboundID, variant.path)
				return true, nil
			}
			continue
		}

		payload := Normalize(resp.Body())
		if success, _ := payload["success"].(bool); success {
			c.logger.Infof("Client %s added to inbound %d via %s", email, req.InboundID, variant.path)
			return true, nil
		}

		failures = append(failures, &apperrors.XrayAPIError{
			Operation: "POST " + variant.path,
			Status:    resp.StatusCode(),
			Message:   firstNonEmpty(stringField(payload, "msg"), lastResponse),
		})
	}

	c.logger.Errorf("All add-client endpoints failed for %s in inbound %d", email, req.InboundID)
	return false, &apperrors.ProvisionError{
		InboundID:    req.InboundID,
		Email:        email,
		LastResponse: lastResponse,
		Err:          errors.Join(failures...),
	}
}

// clientPresent re-reads the inbound and reports whether the email is there
func (c *Client) clientPresent(ctx context.Context, inboundID int, email string) bool {
	inbound, err := c.GetInbound(ctx, inboundID)
	if err != nil {
		return false
	}
	_, ok := findClient(DecodeClients(inbound), email)
	return ok
}
