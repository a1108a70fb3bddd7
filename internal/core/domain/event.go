package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is one notification produced by the chat engine. Broadcast variants
// reach every subscribed connection through the registry's fan-out path;
// reply variants go only to the command's origin connection. The set is
// closed in the same way the Command set is.
type Event interface {
	EventName() string
	Meta() EventMeta
}

// EventMeta is embedded by every event variant. ChannelID is empty for
// server-scoped events, ServerID for connection-scoped replies.
type EventMeta struct {
	ID        string     `json:"id"`
	ServerID  ServerID   `json:"server_id,omitempty"`
	ChannelID ChannelID  `json:"channel_id,omitempty"`
	Actor     IdentityID `json:"actor,omitempty"`
	Time      time.Time  `json:"time"`
}

func (m EventMeta) Meta() EventMeta { return m }

func NewEventMeta(serverID ServerID, channelID ChannelID, actor IdentityID) EventMeta {
	return EventMeta{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		ChannelID: channelID,
		Actor:     actor,
		Time:      time.Now().UTC(),
	}
}

type MessageCreated struct {
	EventMeta
	Message *Message `json:"message"`
	Nonce   string   `json:"nonce,omitempty"`
}

func (MessageCreated) EventName() string { return "message_created" }

type MessageEdited struct {
	EventMeta
	Message *Message `json:"message"`
}

func (MessageEdited) EventName() string { return "message_edited" }

type MessageDeleted struct {
	EventMeta
	MessageID MessageID `json:"message_id"`
}

func (MessageDeleted) EventName() string { return "message_deleted" }

type TypingStarted struct {
	EventMeta
	Nick string `json:"nick"`
}

func (TypingStarted) EventName() string { return "typing_started" }

type TypingStopped struct {
	EventMeta
}

func (TypingStopped) EventName() string { return "typing_stopped" }

type ChannelCreated struct {
	EventMeta
	Channel *Channel `json:"channel"`
}

func (ChannelCreated) EventName() string { return "channel_created" }

type ChannelDeleted struct {
	EventMeta
	Name string `json:"name"`
}

func (ChannelDeleted) EventName() string { return "channel_deleted" }

type ChannelArchived struct {
	EventMeta
}

func (ChannelArchived) EventName() string { return "channel_archived" }

type ChannelUnarchived struct {
	EventMeta
}

func (ChannelUnarchived) EventName() string { return "channel_unarchived" }

type TopicChanged struct {
	EventMeta
	Topic string `json:"topic"`
	Nick  string `json:"nick"`
}

func (TopicChanged) EventName() string { return "topic_changed" }

type SlowModeChanged struct {
	EventMeta
	Interval time.Duration `json:"interval_ms"`
}

func (SlowModeChanged) EventName() string { return "slow_mode_changed" }

type ChannelPermissionsChanged struct {
	EventMeta
}

func (ChannelPermissionsChanged) EventName() string { return "channel_permissions_changed" }

type MemberJoined struct {
	EventMeta
	Nick string `json:"nick"`
}

func (MemberJoined) EventName() string { return "member_joined" }

type MemberParted struct {
	EventMeta
	Nick   string `json:"nick"`
	Reason string `json:"reason,omitempty"`
}

func (MemberParted) EventName() string { return "member_parted" }

type MemberKicked struct {
	EventMeta
	Target     IdentityID `json:"target"`
	TargetNick string     `json:"target_nick"`
	ActorNick  string     `json:"actor_nick"`
	Reason     string     `json:"reason,omitempty"`
}

func (MemberKicked) EventName() string { return "member_kicked" }

type MemberBanned struct {
	EventMeta
	Target     IdentityID `json:"target"`
	TargetNick string     `json:"target_nick"`
	ActorNick  string     `json:"actor_nick"`
	Reason     string     `json:"reason,omitempty"`
}

func (MemberBanned) EventName() string { return "member_banned" }

type MemberUnbanned struct {
	EventMeta
	Target IdentityID `json:"target"`
}

func (MemberUnbanned) EventName() string { return "member_unbanned" }

type MemberInvited struct {
	EventMeta
	Target     IdentityID `json:"target"`
	TargetNick string     `json:"target_nick"`
	ActorNick  string     `json:"actor_nick"`
}

func (MemberInvited) EventName() string { return "member_invited" }

type MemberUpdated struct {
	EventMeta
	Member *Member `json:"member"`
}

func (MemberUpdated) EventName() string { return "member_updated" }

type NickChanged struct {
	EventMeta
	OldNick string `json:"old_nick"`
	NewNick string `json:"new_nick"`
}

func (NickChanged) EventName() string { return "nick_changed" }

type PresenceChanged struct {
	EventMeta
	Nick        string         `json:"nick"`
	Status      PresenceStatus `json:"status"`
	AwayMessage string         `json:"away_message,omitempty"`
}

func (PresenceChanged) EventName() string { return "presence_changed" }

type RoleCreated struct {
	EventMeta
	Role *Role `json:"role"`
}

func (RoleCreated) EventName() string { return "role_created" }

type RoleUpdated struct {
	EventMeta
	Role *Role `json:"role"`
}

func (RoleUpdated) EventName() string { return "role_updated" }

type RoleDeleted struct {
	EventMeta
	RoleID RoleID `json:"role_id"`
	Name   string `json:"name"`
}

func (RoleDeleted) EventName() string { return "role_deleted" }

type ServerCreated struct {
	EventMeta
	Server *Server `json:"server"`
}

func (ServerCreated) EventName() string { return "server_created" }

type ServerDeleted struct {
	EventMeta
	Name string `json:"name"`
}

func (ServerDeleted) EventName() string { return "server_deleted" }

// Reply events below answer a single command; they are never broadcast.

// ChannelSnapshot is the state of a channel handed to a connection that
// just joined or asked for it.
type ChannelSnapshot struct {
	EventMeta
	Channel *Channel `json:"channel"`
}

func (ChannelSnapshot) EventName() string { return "channel_snapshot" }

type HistorySlice struct {
	EventMeta
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

func (HistorySlice) EventName() string { return "history_slice" }

type ChannelList struct {
	EventMeta
	Channels []*Channel `json:"channels"`
}

func (ChannelList) EventName() string { return "channel_list" }

type MemberSummary struct {
	Identity    IdentityID     `json:"identity"`
	Username    string         `json:"username"`
	Nick        string         `json:"nick"`
	Status      PresenceStatus `json:"status"`
	AwayMessage string         `json:"away_message,omitempty"`
	RoleIDs     []RoleID       `json:"role_ids,omitempty"`
}

type MemberList struct {
	EventMeta
	Members []MemberSummary `json:"members"`
}

func (MemberList) EventName() string { return "member_list" }

type MemberInfo struct {
	EventMeta
	Member   MemberSummary `json:"member"`
	JoinedAt time.Time     `json:"joined_at"`
}

func (MemberInfo) EventName() string { return "member_info" }

type WebhookList struct {
	EventMeta
	Webhooks []*Webhook `json:"webhooks"`
}

func (WebhookList) EventName() string { return "webhook_list" }
