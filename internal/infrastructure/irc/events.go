package irc

import (
	"fmt"

	"parley/internal/core/domain"
)

// serverTimeLayout is RFC3339 with millisecond precision, the format the
// server-time capability specifies.
const serverTimeLayout = "2006-01-02T15:04:05.000Z"

// tagged prefixes a line with @time/@msgid tags when the client negotiated
// the matching capabilities.
func (s *session) tagged(meta domain.EventMeta, line string) string {
	if !s.caps.serverTime && !s.caps.messageTags {
		return line
	}
	tags := ""
	if s.caps.serverTime {
		tags = "time=" + meta.Time.UTC().Format(serverTimeLayout)
	}
	if s.caps.messageTags {
		if tags != "" {
			tags += ";"
		}
		tags += "msgid=" + meta.ID
	}
	return "@" + tags + " " + line
}

// renderEvent maps an engine event to zero or more protocol lines. Events
// with no IRC equivalent render to nothing; that is not a delivery failure.
func (s *session) renderEvent(event domain.Event) []string {
	meta := event.Meta()
	nick := s.currentNick()

	switch e := event.(type) {
	case domain.MessageCreated:
		// IRC never echoes a sender's own PRIVMSG.
		if meta.Actor == s.identity {
			return nil
		}
		text := e.Message.Content
		if e.Message.Action {
			text = "\x01ACTION " + text + "\x01"
		}
		return []string{s.tagged(meta, s.fmt.privmsg(e.Message.AuthorName, s.channelName(meta.ChannelID), text))}

	case domain.MessageEdited:
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* A message was edited in %s", s.channelName(meta.ChannelID))))}

	case domain.MessageDeleted:
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* A message was deleted in %s", s.channelName(meta.ChannelID))))}

	case domain.MemberJoined:
		// The session's own JOIN echo is emitted on the command path.
		if meta.Actor == s.identity {
			return nil
		}
		return []string{s.tagged(meta, s.fmt.join(e.Nick, s.channelName(meta.ChannelID)))}

	case domain.MemberParted:
		if meta.Actor == s.identity {
			return nil
		}
		return []string{s.tagged(meta, s.fmt.part(e.Nick, s.channelName(meta.ChannelID), e.Reason))}

	case domain.MemberKicked:
		line := s.fmt.kick(e.ActorNick, s.channelName(meta.ChannelID), e.TargetNick, e.Reason)
		if e.Target == s.identity {
			s.channelNames.Delete(meta.ChannelID)
		}
		return []string{s.tagged(meta, line)}

	case domain.MemberBanned:
		reason := e.Reason
		if reason == "" {
			reason = "No reason given"
		}
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("%s banned %s: %s", e.ActorNick, e.TargetNick, reason)))}

	case domain.MemberInvited:
		if e.Target != s.identity {
			return nil
		}
		return []string{s.tagged(meta, s.fmt.invite(e.ActorNick, e.TargetNick, s.channelName(meta.ChannelID)))}

	case domain.NickChanged:
		if meta.Actor == s.identity {
			s.setNick(e.NewNick)
		}
		return []string{s.tagged(meta, s.fmt.nickChange(e.OldNick, e.NewNick))}

	case domain.TopicChanged:
		return []string{s.tagged(meta, s.fmt.topicChange(e.Nick, s.channelName(meta.ChannelID), e.Topic))}

	case domain.ChannelCreated:
		s.rememberChannel(e.Channel.ID, e.Channel.Name)
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* New channel #%s", e.Channel.Name)))}

	case domain.ChannelDeleted:
		s.channelNames.Delete(meta.ChannelID)
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* Channel #%s was deleted", e.Name)))}

	case domain.ChannelArchived:
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* Channel %s was archived", s.channelName(meta.ChannelID))))}

	case domain.ChannelUnarchived:
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* Channel %s was unarchived", s.channelName(meta.ChannelID))))}

	case domain.ServerDeleted:
		return []string{s.tagged(meta, s.fmt.notice(nick, fmt.Sprintf("* Server %s was deleted", e.Name)))}

	// Typing, presence, permission and role bookkeeping have no rendering
	// on this protocol; WHOIS surfaces away state on demand.
	case domain.TypingStarted, domain.TypingStopped,
		domain.PresenceChanged, domain.SlowModeChanged,
		domain.ChannelPermissionsChanged, domain.MemberUpdated,
		domain.MemberUnbanned, domain.RoleCreated, domain.RoleUpdated,
		domain.RoleDeleted, domain.ServerCreated:
		return nil
	}

	return nil
}
