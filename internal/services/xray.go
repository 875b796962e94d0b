package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/models"
	"xui-vpn-shop/pkg/xrayclient"
)

// PanelClient is the part of the panel client the bot relies on
type PanelClient interface {
	GetInbound(ctx context.Context, id int) (*models.Inbound, error)
	ListClients(ctx context.Context, inboundID int) ([]models.Client, error)
	GetClient(ctx context.Context, inboundID int, email string) (*models.Client, error)
	AddClient(ctx context.Context, req xrayclient.AddClientRequest) (string, error)
	ResolveLink(ctx context.Context, inboundID int, email string, policy xrayclient.RetryPolicy) (string, error)
	GetLink(ctx context.Context, inboundID int, email string) (string, error)
	AddTraffic(ctx context.Context, inboundID int, email string, addGB int64) error
	UpdateClient(ctx context.Context, inboundID int, email string, mutate func(*models.Client) error) error
}

// XrayService binds the panel client to the inbound the shop sells from
type XrayService struct {
	client    PanelClient
	inboundID int
	policy    xrayclient.RetryPolicy
	logger    *logrus.Logger
}

// NewXrayService creates a new X-ray service
func NewXrayService(cfg *config.Config, logger *logrus.Logger) *XrayService {
	return NewXrayServiceWithClient(xrayclient.NewClient(cfg.Server, logger), cfg, logger)
}

// NewXrayServiceWithClient creates an X-ray service around an existing client
func NewXrayServiceWithClient(client PanelClient, cfg *config.Config, logger *logrus.Logger) *XrayService {
	return &XrayService{
		client:    client,
		inboundID: cfg.Server.InboundID,
		policy:    linkPolicy(cfg.Link),
		logger:    logger,
	}
}

func linkPolicy(cfg config.LinkConfig) xrayclient.RetryPolicy {
	policy := xrayclient.DefaultRetryPolicy()
	if cfg.Wait > 0 {
		policy.MaxWait = cfg.Wait
	}
	if cfg.PollInterval > 0 {
		policy.Interval = cfg.PollInterval
	}
	return policy
}

// InboundID returns the inbound the service works with
func (s *XrayService) InboundID() int {
	return s.inboundID
}

// LinkPolicy returns the configured link resolution window
func (s *XrayService) LinkPolicy() xrayclient.RetryPolicy {
	return s.policy
}

// CreateClient creates a client in the shop inbound and waits for its link
func (s *XrayService) CreateClient(ctx context.Context, email string, limitIP int, totalGB int64, expiryMs int64, flow string) (string, error) {
	return s.client.AddClient(ctx, xrayclient.AddClientRequest{
		InboundID:    s.inboundID,
		Email:        email,
		LimitIP:      limitIP,
		TotalGB:      float64(totalGB),
		ExpiryTimeMs: expiryMs,
		Flow:         flow,
		Wait:         s.policy,
	})
}

// ClientLink returns the link of an existing client without waiting
func (s *XrayService) ClientLink(ctx context.Context, email string) (string, error) {
	return s.client.GetLink(ctx, s.inboundID, email)
}

// WaitForLink polls for a client link for at most wait
func (s *XrayService) WaitForLink(ctx context.Context, email string, wait time.Duration) (string, error) {
	policy := s.policy
	policy.MaxWait = wait
	return s.client.ResolveLink(ctx, s.inboundID, email, policy)
}

// Clients returns every client of the shop inbound
func (s *XrayService) Clients(ctx context.Context) ([]models.Client, error) {
	return s.client.ListClients(ctx, s.inboundID)
}

// Client returns one client, matching the email ignoring case
func (s *XrayService) Client(ctx context.Context, email string) (*models.Client, error) {
	return s.client.GetClient(ctx, s.inboundID, email)
}

// ClientUsage returns the bytes a client has used so far
func (s *XrayService) ClientUsage(ctx context.Context, email string) (int64, error) {
	inbound, err := s.client.GetInbound(ctx, s.inboundID)
	if err != nil {
		return 0, err
	}
	stat, ok := inbound.StatFor(email)
	if !ok {
		s.logger.Debugf("No traffic statistics for %s yet", email)
		return 0, nil
	}
	return stat.Up + stat.Down, nil
}

// AddTraffic raises a client's traffic ceiling
func (s *XrayService) AddTraffic(ctx context.Context, email string, addGB int64) error {
	return s.client.AddTraffic(ctx, s.inboundID, email, addGB)
}

// UpdateClient changes a client in one locked read-modify-write. email must be the
// panel's stored spelling.
func (s *XrayService) UpdateClient(ctx context.Context, email string, mutate func(*models.Client) error) error {
	return s.client.UpdateClient(ctx, s.inboundID, email, mutate)
}
