package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/constants"
	"xui-vpn-shop/internal/helpers"
)

// ReminderService warns users whose subscription is about to expire
type ReminderService struct {
	xray      *XrayService
	storage   *StorageService
	messenger Messenger
	cron      *cron.Cron
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReminderService creates a new reminder service
func NewReminderService(xray *XrayService, storage *StorageService, messenger Messenger, logger *logrus.Logger) *ReminderService {
	return &ReminderService{
		xray:      xray,
		storage:   storage,
		messenger: messenger,
		cron:      cron.New(cron.WithSeconds()),
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the reminder run with a six-field cron spec
func (s *ReminderService) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = constants.DefaultReminderSchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		sent := s.RunOnce(ctx)
		s.logger.Infof("Reminder run finished, %d sent", sent)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Infof("Reminders scheduled at %q", schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *ReminderService) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce checks every client once and returns how many reminders went out
func (s *ReminderService) RunOnce(ctx context.Context) int {
	clients, err := s.xray.Clients(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list clients for reminders: %v", err)
		return 0
	}

	now := s.now()
	sent := 0
	for _, client := range clients {
		if client.Email == "" || client.ExpiryTime == 0 {
			continue
		}

		daysLeft := helpers.DaysLeft(now, client.ExpiryTime)
		if !isReminderThreshold(daysLeft) || s.storage.ReminderSent(client.Email, daysLeft) {
			continue
		}

		userID, ok := s.storage.UserForEmail(client.Email)
		if !ok {
			s.logger.Debugf("No chat bound to %s, skipping reminder", client.Email)
			continue
		}

		if err := s.messenger.SendText(userID, helpers.FormatReminder(client.Email, daysLeft, client.ExpiryTime)); err != nil {
			s.logger.Errorf("Failed to send reminder to %s: %v", client.Email, err)
			continue
		}
		if err := s.storage.MarkReminderSent(client.Email, daysLeft); err != nil {
			s.logger.Errorf("Failed to record reminder for %s: %v", client.Email, err)
		}

		s.logger.Infof("Sent %d-day reminder for %s", daysLeft, client.Email)
		sent++
	}

	return sent
}

func isReminderThreshold(daysLeft int) bool {
	for _, d := range constants.ReminderThresholdsDays {
		if d == daysLeft {
			return true
		}
	}
	return false
}
