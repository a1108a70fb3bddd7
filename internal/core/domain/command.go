package domain

import "time"

// Command is one request against the chat engine. The set of variants is
// closed: both protocol adapters construct these and nothing else, and the
// engine dispatches on the concrete type. Wire names double as the JSON
// frame types of the real-time protocol.
type Command interface {
	CommandName() string
}

// Channel-scoped commands carry either the channel id or a (server id,
// channel name) pair; the engine resolves names for line-protocol clients
// that never see ids.
type ChannelRef struct {
	ChannelID ChannelID `json:"channel_id,omitempty"`
	ServerID  ServerID  `json:"server_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
}

type SendMessage struct {
	ChannelRef
	Content string    `json:"content"`
	ReplyTo MessageID `json:"reply_to,omitempty"`
	Action  bool      `json:"action,omitempty"`
	Nonce   string    `json:"nonce,omitempty"`
}

func (SendMessage) CommandName() string { return "send_message" }

type EditMessage struct {
	ChannelRef
	MessageID MessageID `json:"message_id"`
	Content   string    `json:"content"`
}

func (EditMessage) CommandName() string { return "edit_message" }

type DeleteMessage struct {
	ChannelRef
	MessageID MessageID `json:"message_id"`
}

func (DeleteMessage) CommandName() string { return "delete_message" }

type GetHistory struct {
	ChannelRef
	Before MessageID `json:"before,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

func (GetHistory) CommandName() string { return "get_history" }

type Typing struct {
	ChannelRef
}

func (Typing) CommandName() string { return "typing" }

type CreateChannel struct {
	ServerID ServerID `json:"server_id"`
	Name     string   `json:"name"`
	Topic    string   `json:"topic,omitempty"`
	Private  bool     `json:"private,omitempty"`
}

func (CreateChannel) CommandName() string { return "create_channel" }

type DeleteChannel struct {
	ChannelRef
}

func (DeleteChannel) CommandName() string { return "delete_channel" }

type ArchiveChannel struct {
	ChannelRef
}

func (ArchiveChannel) CommandName() string { return "archive_channel" }

type UnarchiveChannel struct {
	ChannelRef
}

func (UnarchiveChannel) CommandName() string { return "unarchive_channel" }

type SetTopic struct {
	ChannelRef
	Topic string `json:"topic"`
}

func (SetTopic) CommandName() string { return "set_topic" }

type SetSlowMode struct {
	ChannelRef
	Interval time.Duration `json:"interval_ms"`
}

func (SetSlowMode) CommandName() string { return "set_slow_mode" }

type JoinChannel struct {
	ChannelRef
}

func (JoinChannel) CommandName() string { return "join_channel" }

type PartChannel struct {
	ChannelRef
	Reason string `json:"reason,omitempty"`
}

func (PartChannel) CommandName() string { return "part_channel" }

type ListChannels struct {
	ServerID ServerID `json:"server_id"`
}

func (ListChannels) CommandName() string { return "list_channels" }

type ListMembers struct {
	ChannelRef
}

func (ListMembers) CommandName() string { return "list_members" }

type InviteMember struct {
	ChannelRef
	Identity IdentityID `json:"identity,omitempty"`
	Nick     string     `json:"nick,omitempty"`
}

func (InviteMember) CommandName() string { return "invite_member" }

type CreateServer struct {
	Name string `json:"name"`
}

func (CreateServer) CommandName() string { return "create_server" }

type DeleteServer struct {
	ServerID ServerID `json:"server_id"`
}

func (DeleteServer) CommandName() string { return "delete_server" }

type CreateRole struct {
	ServerID    ServerID   `json:"server_id"`
	Name        string     `json:"name"`
	Color       string     `json:"color,omitempty"`
	Permissions Capability `json:"permissions"`
	Rank        int        `json:"rank"`
}

func (CreateRole) CommandName() string { return "create_role" }

type UpdateRole struct {
	ServerID    ServerID    `json:"server_id"`
	RoleID      RoleID      `json:"role_id"`
	Name        *string     `json:"name,omitempty"`
	Color       *string     `json:"color,omitempty"`
	Permissions *Capability `json:"permissions,omitempty"`
	Rank        *int        `json:"rank,omitempty"`
}

func (UpdateRole) CommandName() string { return "update_role" }

type DeleteRole struct {
	ServerID ServerID `json:"server_id"`
	RoleID   RoleID   `json:"role_id"`
}

func (DeleteRole) CommandName() string { return "delete_role" }

type AssignRole struct {
	ServerID ServerID   `json:"server_id"`
	RoleID   RoleID     `json:"role_id"`
	Identity IdentityID `json:"identity"`
}

func (AssignRole) CommandName() string { return "assign_role" }

type UnassignRole struct {
	ServerID ServerID   `json:"server_id"`
	RoleID   RoleID     `json:"role_id"`
	Identity IdentityID `json:"identity"`
}

func (UnassignRole) CommandName() string { return "unassign_role" }

type SetOverride struct {
	ChannelRef
	RoleID   RoleID     `json:"role_id,omitempty"`
	Identity IdentityID `json:"identity,omitempty"`
	Allow    Capability `json:"allow"`
	Deny     Capability `json:"deny"`
}

func (SetOverride) CommandName() string { return "set_override" }

type ClearOverride struct {
	ChannelRef
	RoleID   RoleID     `json:"role_id,omitempty"`
	Identity IdentityID `json:"identity,omitempty"`
}

func (ClearOverride) CommandName() string { return "clear_override" }

type SetNickname struct {
	ServerID ServerID `json:"server_id"`
	Nickname string   `json:"nickname"`
}

func (SetNickname) CommandName() string { return "set_nickname" }

type KickMember struct {
	ChannelRef
	Identity IdentityID `json:"identity,omitempty"`
	Nick     string     `json:"nick,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func (KickMember) CommandName() string { return "kick_member" }

type BanMember struct {
	ServerID ServerID   `json:"server_id"`
	Identity IdentityID `json:"identity,omitempty"`
	Nick     string     `json:"nick,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func (BanMember) CommandName() string { return "ban_member" }

type UnbanMember struct {
	ServerID ServerID   `json:"server_id"`
	Identity IdentityID `json:"identity"`
}

func (UnbanMember) CommandName() string { return "unban_member" }

type GetMember struct {
	ServerID ServerID   `json:"server_id"`
	Identity IdentityID `json:"identity,omitempty"`
	Nick     string     `json:"nick,omitempty"`
}

func (GetMember) CommandName() string { return "get_member" }

type SetAway struct {
	Away    bool   `json:"away"`
	Message string `json:"message,omitempty"`
}

func (SetAway) CommandName() string { return "set_away" }

type CreateWebhook struct {
	ServerID  ServerID  `json:"server_id"`
	ChannelID ChannelID `json:"channel_id,omitempty"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events,omitempty"`
}

func (CreateWebhook) CommandName() string { return "create_webhook" }

type DeleteWebhook struct {
	ServerID  ServerID  `json:"server_id"`
	WebhookID WebhookID `json:"webhook_id"`
}

func (DeleteWebhook) CommandName() string { return "delete_webhook" }

type ListWebhooks struct {
	ServerID ServerID `json:"server_id"`
}

func (ListWebhooks) CommandName() string { return "list_webhooks" }
