package services

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/constants"
	"xui-vpn-shop/internal/models"
)

// PaymentService holds payment requests waiting for an admin decision.
// Requests expire after a day and can be decided only once.
type PaymentService struct {
	cache  *cache.Cache
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		cache:  cache.New(constants.PaymentRequestTTL*time.Minute, constants.CacheCleanupInterval*time.Minute),
		logger: logger,
	}
}

// Create registers a new request and returns it
func (s *PaymentService) Create(kind models.RequestKind, userID int64, email, code string) *models.PaymentRequest {
	request := &models.PaymentRequest{
		ID:        newRequestID(),
		Kind:      kind,
		UserID:    userID,
		Email:     email,
		Code:      code,
		CreatedAt: time.Now().Unix(),
	}

	s.cache.Set(request.ID, request, cache.DefaultExpiration)
	s.logger.Infof("Created %s request %s for user %d (%s, %s)", kind, request.ID, userID, email, code)
	return request
}

// Get returns a pending request without consuming it
func (s *PaymentService) Get(id string) (*models.PaymentRequest, bool) {
	data, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	request, ok := data.(*models.PaymentRequest)
	return request, ok
}

// Take consumes a pending request. A second Take of the same id fails.
func (s *PaymentService) Take(id string) (*models.PaymentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	s.cache.Delete(id)
	return request, true
}

// Restore puts a taken request back, used when applying it failed and the admin may retry
func (s *PaymentService) Restore(request *models.PaymentRequest) {
	s.cache.Set(request.ID, request, cache.DefaultExpiration)
	s.logger.Infof("Restored %s request %s", request.Kind, request.ID)
}

// Pending returns the number of undecided requests
func (s *PaymentService) Pending() int {
	return s.cache.ItemCount()
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
