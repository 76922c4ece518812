package notify

import "context"

// Sender delivers one message to one destination on a single channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, destination, subject, body string) error
}
