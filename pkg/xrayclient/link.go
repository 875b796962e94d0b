package xrayclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
)

// ErrMissingCredential means a client record has neither id nor password
var ErrMissingCredential = errors.New("client has no id or password")

// RetryPolicy bounds how link resolution polls the panel.
// A zero MaxWait means a single lookup.
type RetryPolicy struct {
	Interval    time.Duration
	MaxWait     time.Duration
	Backoff     float64
	MaxInterval time.Duration
}

// DefaultRetryPolicy polls every 400ms for up to 12 seconds
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval: constants.DefaultPollIntervalMs * time.Millisecond,
		MaxWait:  12 * time.Second,
		Backoff:  1,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Interval <= 0 {
		p.Interval = constants.DefaultPollIntervalMs * time.Millisecond
	}
	if p.Backoff < 1 {
		p.Backoff = 1
	}
	return p
}

// next returns the interval following current
func (p RetryPolicy) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Backoff)
	if p.MaxInterval > 0 && next > p.MaxInterval {
		next = p.MaxInterval
	}
	return next
}

// ResolveLink polls the inbound until the client with the given email shows up and
// returns its connection URI. The email match ignores case and surrounding spaces.
func (c *Client) ResolveLink(ctx context.Context, inboundID int, email string, policy RetryPolicy) (string, error) {
	policy = policy.withDefaults()
	start := time.Now()
	deadline := start.Add(policy.MaxWait)
	interval := policy.Interval
	host := c.LinkHost()

	for attempt := 1; ; attempt++ {
		inbound, err := c.GetInbound(ctx, inboundID)
		switch {
		case err == nil:
			if client, ok := findClient(DecodeClients(inbound), email); ok {
				link, err := BuildLink(inbound, client, host)
				if err != nil {
					return "", err
				}
				c.logger.Debugf("Resolved link for %s in inbound %d after %d attempt(s)", email, inboundID, attempt)
				return link, nil
			}
		case isFatal(ctx, err):
			return "", err
		default:
			c.logger.Debugf("Link lookup attempt %d for %s: %v", attempt, email, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}

		interval = policy.next(interval)
	}

	return "", &apperrors.LinkResolutionTimeoutError{
		InboundID: inboundID,
		Email:     email,
		Waited:    time.Since(start).Round(time.Millisecond),
	}
}

// GetLink looks the client up once without waiting
func (c *Client) GetLink(ctx context.Context, inboundID int, email string) (string, error) {
	return c.ResolveLink(ctx, inboundID, email, RetryPolicy{})
}

// BuildLink assembles the VLESS Reality URI for a client of the inbound.
// Query parameters always come in the same order.
func BuildLink(inbound *models.Inbound, client models.Client, host string) (string, error) {
	credential := client.Credential()
	if credential == "" {
		return "", fmt.Errorf("client %s: %w", client.Email, ErrMissingCredential)
	}

	stream := Normalize(inbound.StreamSettings)
	reality := Normalize(stream["realitySettings"])
	realityInner := Normalize(reality["settings"])
	tls := Normalize(stream["tlsSettings"])

	publicKey := firstNonEmpty(stringField(reality, "publicKey"), stringField(realityInner, "publicKey"))
	shortID := firstString(reality["shortIds"])
	serverName := firstNonEmpty(firstString(reality["serverNames"]), host)
	// only the public key is looked up in the nested settings
	fingerprint := firstNonEmpty(
		stringField(tls, "fingerprint"),
		stringField(reality, "fingerprint"),
		constants.DefaultFingerprint,
	)
	flow := firstNonEmpty(strings.TrimSpace(client.Flow), constants.DefaultFlow)

	port := ""
	if inbound.Port != 0 {
		port = strconv.Itoa(inbound.Port)
	}

	tag := client.Email
	if remark := strings.TrimSpace(inbound.Remark); remark != "" {
		tag = remark + "-" + client.Email
	}

	var b strings.Builder
	b.WriteString("vless://")
	b.WriteString(credential)
	b.WriteString("@")
	b.WriteString(host)
	b.WriteString(":")
	b.WriteString(port)
	b.WriteString("?type=tcp&security=reality")
	b.WriteString("&pbk=" + publicKey)
	b.WriteString("&fp=" + fingerprint)
	b.WriteString("&sni=" + serverName)
	b.WriteString("&sid=" + shortID)
	b.WriteString("&spx=%2F")
	b.WriteString("&flow=" + flow)
	b.WriteString("#" + tag)

	return b.String(), nil
}

// findClient matches an email ignoring case and surrounding spaces
func findClient(clients []models.Client, email string) (models.Client, bool) {
	want := strings.ToLower(strings.TrimSpace(email))
	for _, client := range clients {
		if strings.ToLower(strings.TrimSpace(client.Email)) == want {
			return client, true
		}
	}
	return models.Client{}, false
}
