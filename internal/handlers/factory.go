package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"xui-vpn-shop/internal/permissions"
)

// MessageHandler defines the interface for handling Telegram messages
type MessageHandler interface {
	Handle(ctx context.Context, c telebot.Context) error
	CanHandle(accessType permissions.AccessType) bool
}

// HandlerFactory creates message handlers
type HandlerFactory struct {
	deps Dependencies
}

// NewHandlerFactory creates a new handler factory
func NewHandlerFactory(deps Dependencies) *HandlerFactory {
	return &HandlerFactory{
		deps: deps,
	}
}

// CreateHandler creates a message handler for the given access type
func (f *HandlerFactory) CreateHandler(accessType permissions.AccessType) MessageHandler {
	switch accessType {
	case permissions.Admin:
		return NewAdminHandler(f.deps)
	case permissions.Customer:
		return NewCustomerHandler(f.deps)
	default:
		f.deps.Logger.Warnf("Unknown access type: %d", accessType)
		return nil
	}
}
