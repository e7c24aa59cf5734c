// Package events fans out gateway events ("command created", "alert created")
// to external real-time subscribers. The transport is a collaborator, not part
// of the core: anything with Publish fits.
package events

// Topics, relative to the configured prefix.
const (
	TopicCommandCreated = "commands/created"
	TopicAlertCreated   = "alerts/created"
)

type Publisher interface {
	Publish(topic string, payload any)
	Close()
}

// Nop — used when no bus is configured; publishing is fire-and-forget either way.
type Nop struct{}

func (Nop) Publish(string, any) {}
func (Nop) Close()              {}
