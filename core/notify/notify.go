package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// BroadcastGroup reaches every connected subscriber.
const BroadcastGroup = "notifications"

const userGroupPrefix = "user_"

var ErrMalformedEvent = errors.New("malformed event")

// Event is the payload delivered to subscribers.
type Event struct {
	Message string `json:"message"`
}

// ParseEvent decodes an inbound payload, rejecting anything without a message.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if strings.TrimSpace(ev.Message) == "" {
		return Event{}, errors.Wrap(ErrMalformedEvent, "empty message")
	}
	return ev, nil
}

// UserGroup is the group every connection of userID subscribes to.
func UserGroup(userID string) string {
	return userGroupPrefix + userID
}

// Publisher delivers events to the current subscribers of a group.
// Subscribers that join after Publish never see the event.
type Publisher interface {
	Publish(ctx context.Context, group string, ev Event) error
}
