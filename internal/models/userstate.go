package models

// ConversationState represents the state of a conversation with a user
type ConversationState int

const (
	// Default is the initial state
	Default ConversationState = iota
	// AwaitingKeyLogin is the state when the user is typing the login for a new key
	AwaitingKeyLogin
	// AwaitingRenewLogin is the state when the user is typing the login to renew
	AwaitingRenewLogin
	// AwaitingTopUpLogin is the state when the user is typing the login to top up
	AwaitingTopUpLogin
)

// UserState represents the state of a user's conversation
type UserState struct {
	State   ConversationState
	Payload *string
}
