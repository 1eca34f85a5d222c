package alert

import "context"

// Alerter pushes operational alerts to a human-facing channel.
// This keeps the reminder core decoupled from the chat library in use.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}
