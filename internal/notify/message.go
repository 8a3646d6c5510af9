// Package notify fans detected state transitions out to subscribers over
// Discord, Slack, and email, with bounded retry and durable audit logging.
package notify

import (
	"fmt"
	"time"

	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/ups"
)

// Severity colors shared by the webhook payloads.
const (
	colorWarning  = 0xF0AD4E
	colorCritical = 0xD9534F
	colorSuccess  = 0x5CB85C
	colorInfo     = 0x5BC0DE
)

// Message is the composed notification content for one transition. The same
// message goes to every channel; adapters only reshape it.
type Message struct {
	Title string
	Body  string
	Color int
}

// ComposeMessage selects title, body, and severity color for a transition.
// The wording is keyed on the new state; transitions without a dedicated
// message fall back to generic informational wording.
func ComposeMessage(dev store.Device, newState, oldState ups.OperationalState) Message {
	body := fmt.Sprintf("%s changed from %s to %s at %s.",
		dev.Label(), oldState.Label(), newState.Label(),
		time.Now().UTC().Format(time.RFC3339),
	)

	switch newState {
	case ups.StateOnBattery:
		return Message{
			Title: fmt.Sprintf("%s is running on battery power", dev.Label()),
			Body:  body,
			Color: colorWarning,
		}
	case ups.StateLowBattery:
		return Message{
			Title: fmt.Sprintf("%s battery is critically low", dev.Label()),
			Body:  body,
			Color: colorCritical,
		}
	case ups.StateOnline:
		return Message{
			Title: fmt.Sprintf("%s is back on utility power", dev.Label()),
			Body:  body,
			Color: colorSuccess,
		}
	default:
		return Message{
			Title: fmt.Sprintf("%s changed state", dev.Label()),
			Body:  body,
			Color: colorInfo,
		}
	}
}
