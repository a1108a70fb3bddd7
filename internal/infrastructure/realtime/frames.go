package realtime

import (
	"encoding/json"
	"fmt"

	"parley/internal/core/domain"
)

// inboundFrame is one client message: a command name, a client-chosen
// sequence number echoed back on the reply, and the command payload.
type inboundFrame struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Data json.RawMessage `json:"data"`
}

type frameError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// outboundFrame is one server message. Type is "reply", "event", "error" or
// "hello"; exactly the fields for that type are populated.
type outboundFrame struct {
	Type  string      `json:"type"`
	Seq   *int64      `json:"seq,omitempty"`
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error *frameError `json:"error,omitempty"`
}

// helloData greets a connection right after the upgrade.
type helloData struct {
	SessionID           string            `json:"session_id"`
	Identity            domain.IdentityID `json:"identity"`
	Username            string            `json:"username"`
	MOTD                []string          `json:"motd,omitempty"`
	HeartbeatIntervalMS int64             `json:"heartbeat_interval_ms"`
}

// decodeCommand maps a frame type to its command variant. The set is closed;
// an unknown type is a client error, never a crash.
func decodeCommand(frameType string, data json.RawMessage) (domain.Command, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var cmd domain.Command
	switch frameType {
	case domain.SendMessage{}.CommandName():
		cmd = &domain.SendMessage{}
	case domain.EditMessage{}.CommandName():
		cmd = &domain.EditMessage{}
	case domain.DeleteMessage{}.CommandName():
		cmd = &domain.DeleteMessage{}
	case domain.GetHistory{}.CommandName():
		cmd = &domain.GetHistory{}
	case domain.Typing{}.CommandName():
		cmd = &domain.Typing{}
	case domain.CreateChannel{}.CommandName():
		cmd = &domain.CreateChannel{}
	case domain.DeleteChannel{}.CommandName():
		cmd = &domain.DeleteChannel{}
	case domain.ArchiveChannel{}.CommandName():
		cmd = &domain.ArchiveChannel{}
	case domain.UnarchiveChannel{}.CommandName():
		cmd = &domain.UnarchiveChannel{}
	case domain.SetTopic{}.CommandName():
		cmd = &domain.SetTopic{}
	case domain.SetSlowMode{}.CommandName():
		cmd = &domain.SetSlowMode{}
	case domain.JoinChannel{}.CommandName():
		cmd = &domain.JoinChannel{}
	case domain.PartChannel{}.CommandName():
		cmd = &domain.PartChannel{}
	case domain.ListChannels{}.CommandName():
		cmd = &domain.ListChannels{}
	case domain.ListMembers{}.CommandName():
		cmd = &domain.ListMembers{}
	case domain.InviteMember{}.CommandName():
		cmd = &domain.InviteMember{}
	case domain.CreateServer{}.CommandName():
		cmd = &domain.CreateServer{}
	case domain.DeleteServer{}.CommandName():
		cmd = &domain.DeleteServer{}
	case domain.CreateRole{}.CommandName():
		cmd = &domain.CreateRole{}
	case domain.UpdateRole{}.CommandName():
		cmd = &domain.UpdateRole{}
	case domain.DeleteRole{}.CommandName():
		cmd = &domain.DeleteRole{}
	case domain.AssignRole{}.CommandName():
		cmd = &domain.AssignRole{}
	case domain.UnassignRole{}.CommandName():
		cmd = &domain.UnassignRole{}
	case domain.SetOverride{}.CommandName():
		cmd = &domain.SetOverride{}
	case domain.ClearOverride{}.CommandName():
		cmd = &domain.ClearOverride{}
	case domain.SetNickname{}.CommandName():
		cmd = &domain.SetNickname{}
	case domain.KickMember{}.CommandName():
		cmd = &domain.KickMember{}
	case domain.BanMember{}.CommandName():
		cmd = &domain.BanMember{}
	case domain.UnbanMember{}.CommandName():
		cmd = &domain.UnbanMember{}
	case domain.GetMember{}.CommandName():
		cmd = &domain.GetMember{}
	case domain.SetAway{}.CommandName():
		cmd = &domain.SetAway{}
	case domain.CreateWebhook{}.CommandName():
		cmd = &domain.CreateWebhook{}
	case domain.DeleteWebhook{}.CommandName():
		cmd = &domain.DeleteWebhook{}
	case domain.ListWebhooks{}.CommandName():
		cmd = &domain.ListWebhooks{}
	default:
		return nil, fmt.Errorf("unknown command type %q", frameType)
	}

	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", frameType, err)
	}
	return deref(cmd), nil
}

// deref hands the engine value commands, matching how it type-switches.
func deref(cmd domain.Command) domain.Command {
	switch c := cmd.(type) {
	case *domain.SendMessage:
		return *c
	case *domain.EditMessage:
		return *c
	case *domain.DeleteMessage:
		return *c
	case *domain.GetHistory:
		return *c
	case *domain.Typing:
		return *c
	case *domain.CreateChannel:
		return *c
	case *domain.DeleteChannel:
		return *c
	case *domain.ArchiveChannel:
		return *c
	case *domain.UnarchiveChannel:
		return *c
	case *domain.SetTopic:
		return *c
	case *domain.SetSlowMode:
		return *c
	case *domain.JoinChannel:
		return *c
	case *domain.PartChannel:
		return *c
	case *domain.ListChannels:
		return *c
	case *domain.ListMembers:
		return *c
	case *domain.InviteMember:
		return *c
	case *domain.CreateServer:
		return *c
	case *domain.DeleteServer:
		return *c
	case *domain.CreateRole:
		return *c
	case *domain.UpdateRole:
		return *c
	case *domain.DeleteRole:
		return *c
	case *domain.AssignRole:
		return *c
	case *domain.UnassignRole:
		return *c
	case *domain.SetOverride:
		return *c
	case *domain.ClearOverride:
		return *c
	case *domain.SetNickname:
		return *c
	case *domain.KickMember:
		return *c
	case *domain.BanMember:
		return *c
	case *domain.UnbanMember:
		return *c
	case *domain.GetMember:
		return *c
	case *domain.SetAway:
		return *c
	case *domain.CreateWebhook:
		return *c
	case *domain.DeleteWebhook:
		return *c
	case *domain.ListWebhooks:
		return *c
	}
	return cmd
}
