package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/models"
)

// StorageData represents the JSON structure stored in the data file
type StorageData struct {
	UserEmails      map[int64]string              `json:"user_emails"`
	PaidUsers       map[int64]models.Subscription `json:"paid_users"`
	PreferredLogins map[int64]string              `json:"preferred_logins"`
	Reminders       map[string][]int              `json:"reminders"`
	Admins          []int64                       `json:"admins"`
}

// StorageService keeps the chat-user bookkeeping: which login belongs to which user,
// the plan they bought and which expiry reminders were already sent
type StorageService struct {
	filename string
	data     *StorageData
	mu       sync.RWMutex
	logger   *logrus.Logger
}

func newStorageData() *StorageData {
	return &StorageData{
		UserEmails:      make(map[int64]string),
		PaidUsers:       make(map[int64]models.Subscription),
		PreferredLogins: make(map[int64]string),
		Reminders:       make(map[string][]int),
		Admins:          make([]int64, 0),
	}
}

// NewStorageService creates a new storage service and loads the file if it exists
func NewStorageService(filename string, logger *logrus.Logger) *StorageService {
	s := &StorageService{
		filename: filename,
		data:     newStorageData(),
		logger:   logger,
	}

	if err := s.Load(); err != nil {
		logger.Warnf("Failed to load storage file: %v", err)
	}

	return s
}

// Load reads data from JSON file
func (s *StorageService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filename)
	if os.IsNotExist(err) {
		s.logger.Info("Storage file does not exist, starting with empty data")
		return nil
	}
	if err != nil {
		return err
	}

	loaded := newStorageData()
	if err := json.Unmarshal(data, loaded); err != nil {
		return err
	}
	loaded.fillNil()
	s.data = loaded
	return nil
}

// Save writes data to JSON file atomically
func (s *StorageService) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// EmailFor returns the login bound to a chat user
func (s *StorageService) EmailFor(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.data.UserEmails[userID]
	return email, ok
}

// KnownLogin returns the bound login, falling back to the login the user asked for
func (s *StorageService) KnownLogin(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if email, ok := s.data.UserEmails[userID]; ok {
		return email, true
	}
	login, ok := s.data.PreferredLogins[userID]
	return login, ok
}

// UserForEmail returns the chat user a login is bound to
func (s *StorageService) UserForEmail(email string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for userID, bound := range s.data.UserEmails {
		if bound == email {
			return userID, true
		}
	}
	return 0, false
}

// SetPreferredLogin remembers the login a user picked before paying
func (s *StorageService) SetPreferredLogin(userID int64, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.PreferredLogins[userID] = login
	return s.save()
}

// BindUser links a chat user to a login and records the plan
func (s *StorageService) BindUser(userID int64, email string, subscription models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.UserEmails[userID] = email
	s.data.PaidUsers[userID] = subscription
	return s.save()
}

// SubscriptionFor returns the plan recorded for a chat user
func (s *StorageService) SubscriptionFor(userID int64) (models.Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.data.PaidUsers[userID]
	return sub, ok
}

// UnbindLogin removes every local binding of a login and returns the affected users.
// The panel client itself is left untouched.
func (s *StorageService) UnbindLogin(login string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []int64
	for userID, email := range s.data.UserEmails {
		if email == login {
			delete(s.data.UserEmails, userID)
			delete(s.data.PaidUsers, userID)
			removed = append(removed, userID)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, s.save()
}

// ReminderSent reports whether the reminder for this days-left threshold went out
func (s *StorageService) ReminderSent(email string, daysLeft int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.data.Reminders[email] {
		if d == daysLeft {
			return true
		}
	}
	return false
}

// MarkReminderSent records a sent reminder
func (s *StorageService) MarkReminderSent(email string, daysLeft int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Reminders[email] = append(s.data.Reminders[email], daysLeft)
	return s.save()
}

// ClearReminders forgets sent reminders for a login, used after a renewal
func (s *StorageService) ClearReminders(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Reminders[email]; !ok {
		return nil
	}
	delete(s.data.Reminders, email)
	return s.save()
}

// IsAdmin checks if a user was added as admin at runtime
func (s *StorageService) IsAdmin(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.data.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// AddAdmin stores an additional admin
func (s *StorageService) AddAdmin(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.data.Admins {
		if id == userID {
			return nil // Already exists
		}
	}
	s.data.Admins = append(s.data.Admins, userID)
	return s.save()
}

// GetAdmins returns the stored admins
func (s *StorageService) GetAdmins() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admins := make([]int64, len(s.data.Admins))
	copy(admins, s.data.Admins)
	return admins
}

// fillNil replaces maps a hand-edited file may have left out
func (d *StorageData) fillNil() {
	if d.UserEmails == nil {
		d.UserEmails = make(map[int64]string)
	}
	if d.PaidUsers == nil {
		d.PaidUsers = make(map[int64]models.Subscription)
	}
	if d.PreferredLogins == nil {
		d.PreferredLogins = make(map[int64]string)
	}
	if d.Reminders == nil {
		d.Reminders = make(map[string][]int)
	}
	if d.Admins == nil {
		d.Admins = make([]int64, 0)
	}
}

// save is an internal method that assumes the mutex is already locked
func (s *StorageService) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}
