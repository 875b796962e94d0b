package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
)

// Messenger sends chat messages to a user
type Messenger interface {
	SendText(chatID int64, text string) error
	SendLink(chatID int64, email, link string) error
}

// LinkNotifier delivers connection links in the background. A link the panel has not
// published yet is retried a few times before the user is told to come back later.
type LinkNotifier struct {
	xray       *XrayService
	messenger  Messenger
	wait       time.Duration
	retryDelay time.Duration
	attempts   int
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

// NewLinkNotifier creates a new link notifier
func NewLinkNotifier(xray *XrayService, messenger Messenger, cfg config.LinkConfig, logger *logrus.Logger) *LinkNotifier {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = constants.DefaultLinkRetryDelay * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	return &LinkNotifier{
		xray:       xray,
		messenger:  messenger,
		wait:       xray.LinkPolicy().MaxWait,
		retryDelay: retryDelay,
		attempts:   attempts,
		logger:     logger,
	}
}

// Deliver starts resolving the link of email and sends it to chatID when ready
func (n *LinkNotifier) Deliver(ctx context.Context, chatID int64, email string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ctx, chatID, email)
	}()
}

// Wait blocks until every started delivery has finished
func (n *LinkNotifier) Wait() {
	n.wg.Wait()
}

func (n *LinkNotifier) deliver(ctx context.Context, chatID int64, email string) {
	for attempt := 0; ; attempt++ {
		link, err := n.xray.WaitForLink(ctx, email, n.wait)
		if err == nil {
			if err := n.messenger.SendLink(chatID, email, link); err != nil {
				n.logger.Errorf("Failed to send link of %s to %d: %v", email, chatID, err)
			}
			return
		}
		if ctx.Err() != nil {
			n.logger.Debugf("Link delivery for %s cancelled", email)
			return
		}

		var timeout *apperrors.LinkResolutionTimeoutError
		if !errors.As(err, &timeout) {
			n.logger.Errorf("Failed to resolve link of %s: %v", email, err)
			n.notify(chatID, fmt.Sprintf("Failed to get the key: %v", err))
			return
		}

		if attempt >= n.attempts {
			n.logger.Warnf("Link of %s still unavailable after %d attempts", email, attempt+1)
			n.notify(chatID, "The key is still not ready. Please try again later.")
			return
		}

		n.notify(chatID, fmt.Sprintf("The key is not ready yet, trying again in %d seconds...", int(n.retryDelay.Seconds())))

		timer := time.NewTimer(n.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *LinkNotifier) notify(chatID int64, text string) {
	if err := n.messenger.SendText(chatID, text); err != nil {
		n.logger.Errorf("Failed to notify %d: %v", chatID, err)
	}
}
