package internal

import "context"

type Mux interface {
	Get(platform string) (Provider, error)
}

// Provider writes events to a remote calendar using the event ID as the
// remote ID. UpdateEvent and DeleteEvent return ErrRemoteNotFound when the
// remote event does not exist, and ErrAuthExpired when the token was
// rejected.
type Provider interface {
	UpdateEvent(_ context.Context, _ *Account, _ *Event) error
	InsertEvent(_ context.Context, _ *Account, _ *Event) error
	DeleteEvent(_ context.Context, _ *Account, id string) error
}

// TokenRefresher is implemented by providers whose accounts carry
// expiring OAuth tokens.
type TokenRefresher interface {
	RefreshToken(_ context.Context, _ *Account) (*Account, error)
}
