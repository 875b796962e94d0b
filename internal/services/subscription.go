package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/helpers"
	"xui-vpn-shop/internal/models"
)

// ErrNoSubscription is returned for chat users without a bound login
var ErrNoSubscription = errors.New("no active subscription")

// PurchaseResult describes what an approved purchase did in the panel
type PurchaseResult struct {
	Email    string
	Created  bool
	Link     string // empty when the panel had not published the client yet
	ExpiryMs int64
	LimitGB  int64
	Months   int
}

// SubscriptionService turns approved payments into panel changes and keeps the local bindings in step
type SubscriptionService struct {
	xray    *XrayService
	storage *StorageService
	logger  *logrus.Logger
	now     func() time.Time
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(xray *XrayService, storage *StorageService, logger *logrus.Logger) *SubscriptionService {
	return &SubscriptionService{
		xray:    xray,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Purchase applies an approved plan for a chat user. A login unknown to the panel gets a
// new client; a known one is renewed from max(now, current expiry).
func (s *SubscriptionService) Purchase(ctx context.Context, userID int64, email string, tariff models.Tariff) (*PurchaseResult, error) {
	existing, err := s.lookupClient(ctx, email)
	if err != nil {
		return nil, err
	}

	var result *PurchaseResult
	if existing == nil {
		result, err = s.create(ctx, email, tariff)
	} else {
		result, err = s.renew(ctx, existing, tariff)
	}
	if err != nil {
		return nil, err
	}

	if err := s.storage.BindUser(userID, result.Email, subscriptionOf(tariff)); err != nil {
		s.logger.Errorf("Failed to bind user %d to %s: %v", userID, result.Email, err)
	}
	return result, nil
}

// AdminCreate creates a client on an admin's behalf. An existing login only returns its link.
// Logins of the form user_<telegram id>_... are bound to that user.
func (s *SubscriptionService) AdminCreate(ctx context.Context, email string, tariff models.Tariff) (*PurchaseResult, error) {
	existing, err := s.lookupClient(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		link, err := s.xray.ClientLink(ctx, existing.Email)
		if err != nil {
			return nil, err
		}
		return &PurchaseResult{Email: existing.Email, Link: link, ExpiryMs: existing.ExpiryTime, LimitGB: existing.TotalWholeGB()}, nil
	}

	result, err := s.create(ctx, email, tariff)
	if err != nil {
		return nil, err
	}

	if userID, ok := UserIDFromLogin(email); ok {
		if err := s.storage.BindUser(userID, email, subscriptionOf(tariff)); err != nil {
			s.logger.Errorf("Failed to bind user %d to %s: %v", userID, email, err)
		}
	}
	return result, nil
}

// Exists reports whether the panel already has a client with this login
func (s *SubscriptionService) Exists(ctx context.Context, email string) (bool, error) {
	client, err := s.lookupClient(ctx, email)
	return client != nil, err
}

// CanTopUp reports whether a login is on a limited plan. The recorded plan wins over the panel.
func (s *SubscriptionService) CanTopUp(ctx context.Context, userID int64, email string) (bool, error) {
	if sub, ok := s.storage.SubscriptionFor(userID); ok && sub.TrafficLimit != 0 {
		return true, nil
	}

	client, err := s.lookupClient(ctx, email)
	if err != nil {
		return false, err
	}
	return client != nil && !client.IsUnlimited(), nil
}

// TopUp adds a traffic package to a login
func (s *SubscriptionService) TopUp(ctx context.Context, email string, addon models.Addon) error {
	client, err := s.lookupClient(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to add %d GB to %s: %w", addon.GB, email, err)
	}
	if client == nil {
		return fmt.Errorf("failed to add %d GB to %s: %w", addon.GB, email,
			&apperrors.NotFoundError{Resource: "client", Key: email})
	}

	if err := s.xray.AddTraffic(ctx, client.Email, addon.GB); err != nil {
		return fmt.Errorf("failed to add %d GB to %s: %w", addon.GB, client.Email, err)
	}
	s.logger.Infof("Added %d GB to %s", addon.GB, client.Email)
	return nil
}

// Stats renders the subscription summary of a chat user
func (s *SubscriptionService) Stats(ctx context.Context, userID int64) (string, error) {
	email, ok := s.storage.EmailFor(userID)
	if !ok {
		return "", ErrNoSubscription
	}

	var tariff *models.Tariff
	if sub, ok := s.storage.SubscriptionFor(userID); ok {
		if t, found := models.FindTariff(sub.Tariff); found {
			tariff = &t
		}
	}

	client, err := s.xray.Client(ctx, email)
	if err != nil {
		return "", err
	}

	used, err := s.xray.ClientUsage(ctx, email)
	if err != nil {
		s.logger.Warnf("Failed to read usage of %s: %v", email, err)
	}

	return helpers.FormatStats(email, tariff, client.ExpiryTime, client.TotalGB, used), nil
}

// ExpiryText returns the printable expiry of a login, "unknown" when the panel cannot tell
func (s *SubscriptionService) ExpiryText(ctx context.Context, email string) string {
	client, err := s.xray.Client(ctx, email)
	if err != nil {
		s.logger.Warnf("Failed to read expiry of %s: %v", email, err)
		return "unknown"
	}
	return helpers.FormatExpiry(client.ExpiryTime)
}

// Unbind drops the local bindings of a login. The panel client stays.
func (s *SubscriptionService) Unbind(login string) ([]int64, error) {
	return s.storage.UnbindLogin(login)
}

func (s *SubscriptionService) create(ctx context.Context, email string, tariff models.Tariff) (*PurchaseResult, error) {
	expiry := helpers.CalculateExpiryTime(s.now(), tariff.Months)
	flow := tariff.Flow
	if flow == "" {
		flow = constants.DefaultFlow
	}

	link, err := s.xray.CreateClient(ctx, email, constants.DefaultClientLimitIP, tariff.TrafficLimit, expiry, flow)
	var timeout *apperrors.LinkResolutionTimeoutError
	switch {
	case errors.As(err, &timeout):
		s.logger.Warnf("Client %s created but its link is not published yet", email)
	case err != nil:
		return nil, err
	}

	return &PurchaseResult{
		Email:    email,
		Created:  true,
		Link:     link,
		ExpiryMs: expiry,
		LimitGB:  tariff.TrafficLimit,
		Months:   tariff.Months,
	}, nil
}

// renew computes the new expiry and limit inside the inbound lock
func (s *SubscriptionService) renew(ctx context.Context, client *models.Client, tariff models.Tariff) (*PurchaseResult, error) {
	var expiry, limit int64
	err := s.xray.UpdateClient(ctx, client.Email, func(current *models.Client) error {
		expiry = helpers.RenewExpiry(s.now(), current.ExpiryTime, tariff.Months)
		limit = helpers.RenewedLimitGB(*current, tariff)
		current.ExpiryTime = expiry
		current.TotalGB = limit * constants.BytesInGB
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to renew %s: %w", client.Email, err)
	}
	if err := s.storage.ClearReminders(client.Email); err != nil {
		s.logger.Warnf("Failed to reset reminders of %s: %v", client.Email, err)
	}

	link, err := s.xray.ClientLink(ctx, client.Email)
	if err != nil {
		s.logger.Warnf("Renewed %s but could not build its link: %v", client.Email, err)
		link = ""
	}

	s.logger.Infof("Renewed %s for %d months, limit %s", client.Email, tariff.Months, helpers.FormatLimitGB(limit))
	return &PurchaseResult{
		Email:    client.Email,
		Link:     link,
		ExpiryMs: expiry,
		LimitGB:  limit,
		Months:   tariff.Months,
	}, nil
}

// lookupClient returns nil without error when the inbound has no such client. The match
// ignores case, and the returned client carries the email as the panel stores it.
func (s *SubscriptionService) lookupClient(ctx context.Context, email string) (*models.Client, error) {
	client, err := s.xray.Client(ctx, email)
	var notFound *apperrors.NotFoundError
	if errors.As(err, &notFound) && notFound.Resource == "client" {
		return nil, nil
	}
	return client, err
}

func subscriptionOf(tariff models.Tariff) models.Subscription {
	return models.Subscription{Tariff: tariff.Code, TrafficLimit: tariff.TrafficLimit}
}

// UserIDFromLogin extracts the Telegram id from logins shaped user_<id>_...
func UserIDFromLogin(login string) (int64, bool) {
	parts := strings.Split(login, "_")
	if len(parts) < 2 || strings.Trim(parts[1], "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
