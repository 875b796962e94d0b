package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
	"xui-vpn-shop/pkg/xrayclient"
)

const testInboundID = 2

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{InboundID: testInboundID},
		Link: config.LinkConfig{
			Wait:          50 * time.Millisecond,
			PollInterval:  5 * time.Millisecond,
			RetryDelay:    5 * time.Millisecond,
			RetryAttempts: 1,
		},
	}
}

func newTestStorage(t *testing.T) *StorageService {
	t.Helper()
	return NewStorageService(filepath.Join(t.TempDir(), "storage.json"), testLogger())
}

// fakePanelClient is an in-memory inbound
type fakePanelClient struct {
	mu       sync.Mutex
	clients  []models.Client
	stats    map[string]models.ClientStat
	addErr   error
	linkErrs []error
	adds     []xrayclient.AddClientRequest
	resolves int
}

func newFakePanelClient(clients ...models.Client) *fakePanelClient {
	return &fakePanelClient{
		clients: clients,
		stats:   make(map[string]models.ClientStat),
	}
}

func fakeLink(email string) string {
	return "vless://" + email
}

// indexOf matches exactly, like the panel client's update path
func (f *fakePanelClient) indexOf(email string) int {
	for i, c := range f.clients {
		if c.Email == email {
			return i
		}
	}
	return -1
}

// lookup matches ignoring case and spaces, like the panel client's lookups
func (f *fakePanelClient) lookup(email string) int {
	want := strings.ToLower(strings.TrimSpace(email))
	for i, c := range f.clients {
		if strings.ToLower(strings.TrimSpace(c.Email)) == want {
			return i
		}
	}
	return -1
}

func (f *fakePanelClient) GetInbound(ctx context.Context, id int) (*models.Inbound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inbound := &models.Inbound{ID: id, Enable: true}
	for _, stat := range f.stats {
		inbound.ClientStats = append(inbound.ClientStats, stat)
	}
	return inbound, nil
}

func (f *fakePanelClient) ListClients(ctx context.Context, inboundID int) ([]models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Client, len(f.clients))
	copy(out, f.clients)
	return out, nil
}

func (f *fakePanelClient) GetClient(ctx context.Context, inboundID int, email string) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.lookup(email)
	if i < 0 {
		return nil, &apperrors.NotFoundError{Resource: "client", Key: email}
	}
	client := f.clients[i]
	return &client, nil
}

func (f *fakePanelClient) AddClient(ctx context.Context, req xrayclient.AddClientRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.adds = append(f.adds, req)
	if f.addErr != nil {
		return "", f.addErr
	}
	if i := f.lookup(req.Email); i >= 0 {
		return fakeLink(f.clients[i].Email), nil
	}
	f.clients = append(f.clients, models.Client{
		ID:         "uuid-" + req.Email,
		Email:      req.Email,
		Flow:       req.Flow,
		LimitIP:    req.LimitIP,
		TotalGB:    int64(req.TotalGB) * constants.BytesInGB,
		ExpiryTime: req.ExpiryTimeMs,
	})
	return fakeLink(req.Email), nil
}

func (f *fakePanelClient) ResolveLink(ctx context.Context, inboundID int, email string, policy xrayclient.RetryPolicy) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolves++
	if len(f.linkErrs) > 0 {
		err := f.linkErrs[0]
		f.linkErrs = f.linkErrs[1:]
		return "", err
	}
	return fakeLink(email), nil
}

func (f *fakePanelClient) GetLink(ctx context.Context, inboundID int, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.lookup(email)
	if i < 0 {
		return "", &apperrors.LinkResolutionTimeoutError{InboundID: inboundID, Email: email}
	}
	return fakeLink(f.clients[i].Email), nil
}

func (f *fakePanelClient) AddTraffic(ctx context.Context, inboundID int, email string, addGB int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(email)
	if i < 0 {
		return &apperrors.NotFoundError{Resource: "client", Key: email}
	}
	if f.clients[i].TotalGB == 0 {
		return &apperrors.UnlimitedPlanError{Email: email}
	}
	f.clients[i].TotalGB += addGB * constants.BytesInGB
	return nil
}

func (f *fakePanelClient) UpdateClient(ctx context.Context, inboundID int, email string, mutate func(*models.Client) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(email)
	if i < 0 {
		return &apperrors.NotFoundError{Resource: "client", Key: email}
	}
	updated := f.clients[i]
	if err := mutate(&updated); err != nil {
		return err
	}
	f.clients[i] = updated
	return nil
}

func (f *fakePanelClient) client(email string) models.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[f.indexOf(email)]
}

func (f *fakePanelClient) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adds)
}

type sentMessage struct {
	chatID int64
	text   string
}

// fakeMessenger records outgoing messages
type fakeMessenger struct {
	mu    sync.Mutex
	texts []sentMessage
	links []sentMessage
	err   error
}

func (m *fakeMessenger) SendText(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.texts = append(m.texts, sentMessage{chatID: chatID, text: text})
	return nil
}

func (m *fakeMessenger) SendLink(chatID int64, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links = append(m.links, sentMessage{chatID: chatID, text: link})
	return nil
}

func (m *fakeMessenger) sentTexts() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.texts...)
}

func (m *fakeMessenger) sentLinks() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.links...)
}
