package xrayclient

import (
	"context"
	"net/http"
	"strconv"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
)

// AddTraffic raises the client's traffic ceiling by addGB gigabytes.
// Unlimited clients are rejected with *errors.UnlimitedPlanError.
func (c *Client) AddTraffic(ctx context.Context, inboundID int, email string, addGB int64) error {
	if addGB <= 0 {
		return &apperrors.ValidationError{Field: "addGB", Message: "must be positive"}
	}

	return c.mutateClient(ctx, inboundID, email, func(client *models.Client) error {
		if client.IsUnlimited() {
			return &apperrors.UnlimitedPlanError{Email: email}
		}
		client.TotalGB += addGB * constants.BytesInGB
		return nil
	})
}

// SetTotal replaces the client's traffic ceiling (0 = unlimited) and, when
// expiryMs is not nil, its expiry time.
func (c *Client) SetTotal(ctx context.Context, inboundID int, email string, totalGB int64, expiryMs *int64) error {
	if totalGB < 0 {
		return &apperrors.ValidationError{Field: "totalGB", Message: "cannot be negative"}
	}

	return c.mutateClient(ctx, inboundID, email, func(client *models.Client) error {
		client.TotalGB = totalGB * constants.BytesInGB
		if expiryMs != nil {
			client.ExpiryTime = *expiryMs
		}
		return nil
	})
}

// ListClients returns the decoded clients of an inbound
func (c *Client) ListClients(ctx context.Context, inboundID int) ([]models.Client, error) {
	inbound, err := c.GetInbound(ctx, inboundID)
	if err != nil {
		return nil, err
	}
	return DecodeClients(inbound), nil
}

// GetClient returns the client whose email matches ignoring case and surrounding
// spaces, the same rule AddClient uses to detect duplicates. The returned Email is the
// one stored in the panel.
func (c *Client) GetClient(ctx context.Context, inboundID int, email string) (*models.Client, error) {
	clients, err := c.ListClients(ctx, inboundID)
	if err != nil {
		return nil, err
	}
	client, ok := findClient(clients, email)
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "client", Key: email}
	}
	return &client, nil
}

// UpdateClient applies mutate to the client with exactly this email and pushes the
// inbound back. The read, mutate and write all happen under the inbound lock.
func (c *Client) UpdateClient(ctx context.Context, inboundID int, email string, mutate func(*models.Client) error) error {
	return c.mutateClient(ctx, inboundID, email, mutate)
}

// mutateClient runs a read-modify-write of one client under the inbound lock and pushes
// the whole inbound back
func (c *Client) mutateClient(ctx context.Context, inboundID int, email string, mutate func(*models.Client) error) error {
	unlock := c.locks.lock(inboundID)
	defer unlock()

	inbound, err := c.GetInbound(ctx, inboundID)
	if err != nil {
		return err
	}

	clients := DecodeClients(inbound)
	index := -1
	for i := range clients {
		if clients[i].Email == email {
			index = i
			break
		}
	}
	if index < 0 {
		return &apperrors.NotFoundError{Resource: "client", Key: email}
	}

	if err := mutate(&clients[index]); err != nil {
		return err
	}
	want := clients[index]

	payload, err := EncodeAndMergeClients(inbound, clients)
	if err != nil {
		return err
	}

	path := "panel/inbound/update/" + strconv.Itoa(inboundID)
	resp, err := c.doWrite(ctx, http.MethodPost, path, payload)
	if err != nil {
		if isFatal(ctx, err) {
			return err
		}
		response := err.Error()
		if resp != nil {
			response = truncate(string(resp.Body()), 512)
		}
		return &apperrors.UpdateError{InboundID: inboundID, Email: email, Response: response}
	}

	result := Normalize(resp.Body())
	if success, _ := result["success"].(bool); !success {
		return &apperrors.UpdateError{
			InboundID: inboundID,
			Email:     email,
			Response:  firstNonEmpty(stringField(result, "msg"), truncate(string(resp.Body()), 512)),
		}
	}

	c.logger.Infof("Updated client %s in inbound %d (totalGB=%d, expiryTime=%d)",
		email, inboundID, want.TotalGB, want.ExpiryTime)

	c.verifyClient(ctx, inboundID, want)
	return nil
}

// verifyClient re-reads the client after an update. Mismatches are only logged.
func (c *Client) verifyClient(ctx context.Context, inboundID int, want models.Client) {
	inbound, err := c.GetInbound(ctx, inboundID)
	if err != nil {
		c.logger.Warnf("Could not verify client %s after update: %v", want.Email, err)
		return
	}

	got, ok := findClient(DecodeClients(inbound), want.Email)
	switch {
	case !ok:
		c.logger.Warnf("Client %s missing after update of inbound %d", want.Email, inboundID)
	case got.TotalGB != want.TotalGB || got.ExpiryTime != want.ExpiryTime:
		c.logger.Warnf("Client %s after update: totalGB=%d expiryTime=%d, expected totalGB=%d expiryTime=%d",
			want.Email, got.TotalGB, got.ExpiryTime, want.TotalGB, want.ExpiryTime)
	default:
		c.logger.Infof("Verified client %s in inbound %d", want.Email, inboundID)
	}
}
