package streamsink

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/coregx/streamsink/model"
)

// Topics names the stream used for each message type.
type Topics struct {
	Users         string
	Orders        string
	Notifications string
	Events        string
	DeadLetter    string // Shared dead-letter stream, empty for "<stream>-dlq"
}

// DefaultTopics returns the stream names used when nothing is configured.
func DefaultTopics() Topics {
	return Topics{
		Users:         "users-topic",
		Orders:        "orders-topic",
		Notifications: "notifications-topic",
		Events:        "events-topic",
		DeadLetter:    "deadletter-topic",
	}
}

// Validate checks that every data stream is named and that no two message
// types share a stream.
func (t Topics) Validate() error {
	data := t.Data()
	if len(data) != 4 || lo.Contains(data, "") {
		return fmt.Errorf("users, orders, notifications and events topics must all be set")
	}
	if len(lo.Uniq(data)) != len(data) {
		return fmt.Errorf("topics must be distinct: %v", data)
	}
	if lo.Contains(data, t.DeadLetter) {
		return fmt.Errorf("dead-letter topic %q must differ from the data topics", t.DeadLetter)
	}
	return nil
}

// Data returns the four data streams.
func (t Topics) Data() []string {
	return []string{t.Users, t.Orders, t.Notifications, t.Events}
}

// DeadLetterStreams returns the dead-letter streams these topics route to.
func (t Topics) DeadLetterStreams() []string {
	if t.DeadLetter != "" {
		return []string{t.DeadLetter}
	}
	return lo.Map(t.Data(), func(s string, _ int) string {
		return model.DeadLetterStream("", s)
	})
}

// All returns every stream that has to exist on the broker.
func (t Topics) All() []string {
	return lo.Uniq(append(t.Data(), t.DeadLetterStreams()...))
}
