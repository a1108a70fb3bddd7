package domain

import "time"

type WebhookID string

// Webhook is an outbound event subscription. An empty ChannelID subscribes
// to every channel in the server; an empty Events list to every event type.
type Webhook struct {
	ID        WebhookID
	ServerID  ServerID
	ChannelID ChannelID
	Name      string
	URL       string
	Token     string
	Events    []string
	CreatedBy IdentityID
	CreatedAt time.Time
}

func (w *Webhook) Subscribes(eventName string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == eventName {
			return true
		}
	}
	return false
}

// Matches reports whether an event scoped to (serverID, channelID) should be
// delivered to this webhook.
func (w *Webhook) Matches(serverID ServerID, channelID ChannelID, eventName string) bool {
	if w.ServerID != serverID {
		return false
	}
	if w.ChannelID != "" && w.ChannelID != channelID {
		return false
	}
	return w.Subscribes(eventName)
}
