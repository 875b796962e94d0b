package services

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/constants"
	"xui-vpn-shop/internal/models"
)

// UserStateService keeps per-user conversation state between messages
type UserStateService struct {
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewUserStateService creates a new user state service
func NewUserStateService(logger *logrus.Logger) *UserStateService {
	return &UserStateService{
		cache:  cache.New(constants.CacheExpiration*time.Minute, constants.CacheCleanupInterval*time.Minute),
		logger: logger,
	}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("user_state_%d", userID)
}

// GetState gets a user's state, the default state when none is stored
func (s *UserStateService) GetState(userID int64) models.UserState {
	if data, found := s.cache.Get(stateKey(userID)); found {
		if state, ok := data.(models.UserState); ok {
			return state
		}
		s.logger.Warnf("Invalid state type for user %d", userID)
	}
	return models.UserState{State: models.Default}
}

// SetState sets a user's state
func (s *UserStateService) SetState(userID int64, state models.UserState) {
	s.cache.Set(stateKey(userID), state, cache.DefaultExpiration)
	s.logger.Debugf("Set state for user %d: %d", userID, state.State)
}

// ClearState clears a user's state
func (s *UserStateService) ClearState(userID int64) {
	s.cache.Delete(stateKey(userID))
	s.logger.Debugf("Cleared state for user %d", userID)
}

// WithConversationState updates a user's conversation state and drops the payload
func (s *UserStateService) WithConversationState(userID int64, conversationState models.ConversationState) {
	s.SetState(userID, models.UserState{State: conversationState})
}

// WithPayload updates a user's payload
func (s *UserStateService) WithPayload(userID int64, payload string) {
	state := s.GetState(userID)
	state.Payload = &payload
	s.SetState(userID, state)
}
