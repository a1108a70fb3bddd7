package irc

import (
	"context"
	"strings"

	"parley/internal/core/domain"
	apperrors "parley/pkg/errors"
)

// chanRef addresses a channel by its IRC name on the bootstrap server; IRC
// clients never see server or channel ids.
func (s *session) chanRef(name string) domain.ChannelRef {
	return domain.ChannelRef{
		ServerID: s.srv.bootstrapID(),
		Channel:  strings.TrimPrefix(name, "#"),
	}
}

func (s *session) apply(ctx context.Context, cmd domain.Command) ([]domain.Event, error) {
	events, err := s.srv.chat.Apply(ctx, s.actor(), cmd)
	if err == nil {
		s.rateStrikes = 0
	}
	return events, err
}

// sendError renders an engine error as the numeric the failing command
// calls for. Returns true when the error is fatal to the connection.
func (s *session) sendError(err error, command, channel, target string) bool {
	nick := s.currentNick()
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		s.push(s.fmt.notice(nick, "Command failed, please try again later"))
		return false
	}

	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput:
		s.push(s.fmt.needMoreParams(nick, command))
	case apperrors.ErrCodeNotFound:
		if channel != "" {
			s.push(s.fmt.noSuchChannel(nick, channel))
		} else {
			s.push(s.fmt.noSuchNick(nick, target))
		}
	case apperrors.ErrCodeForbidden:
		if channel != "" {
			s.push(s.fmt.chanOpPrivsNeeded(nick, channel))
		} else {
			s.push(s.fmt.noPrivileges(nick))
		}
	case apperrors.ErrCodeUnauthorized:
		s.push(s.fmt.passwordMismatch(nick))
	case apperrors.ErrCodeRateLimit:
		s.rateStrikes++
		s.push(s.fmt.tryAgain(nick, command))
	case apperrors.ErrCodeConflict:
		s.push(s.fmt.notice(nick, appErr.Message))
	case apperrors.ErrCodeProtocol:
		s.Close("protocol error")
		return true
	default:
		// Storage trouble and everything unclassified: generic text, no
		// internal detail.
		s.push(s.fmt.notice(nick, "Command failed, please try again later"))
	}
	return false
}

// handleCommand dispatches one registered-state line. Returns true when the
// session should end.
func (s *session) handleCommand(ctx context.Context, msg *Message) bool {
	nick := s.currentNick()

	switch msg.Command {
	case "PING":
		s.push(s.fmt.pong(msg.Trailing()))
	case "PONG":
		// deadline already reset by the read
	case "QUIT":
		return true
	case "CAP":
		s.handleCAP(msg)
	case "JOIN":
		if len(msg.Params) < 1 {
			s.push(s.fmt.needMoreParams(nick, "JOIN"))
			return false
		}
		for _, channel := range strings.Split(msg.Param(0), ",") {
			s.handleJoin(ctx, channel)
		}
	case "PART":
		if len(msg.Params) < 1 {
			s.push(s.fmt.needMoreParams(nick, "PART"))
			return false
		}
		reason := ""
		if len(msg.Params) > 1 {
			reason = msg.Trailing()
		}
		for _, channel := range strings.Split(msg.Param(0), ",") {
			s.handlePart(ctx, channel, reason)
		}
	case "PRIVMSG":
		s.handlePrivmsg(ctx, msg)
	case "NOTICE":
		// Inbound NOTICE never generates replies, per RFC. Not mapped to
		// the engine either.
	case "TOPIC":
		s.handleTopic(ctx, msg)
	case "NAMES":
		if len(msg.Params) < 1 {
			s.push(s.fmt.needMoreParams(nick, "NAMES"))
			return false
		}
		s.handleNames(ctx, msg.Param(0))
	case "LIST":
		s.handleList(ctx)
	case "WHO":
		s.handleWho(ctx, msg.Param(0))
	case "WHOIS":
		if len(msg.Params) < 1 {
			s.push(s.fmt.noNicknameGiven(nick))
			return false
		}
		s.handleWhois(ctx, msg.Param(0))
	case "AWAY":
		s.handleAway(ctx, msg)
	case "INVITE":
		if len(msg.Params) < 2 {
			s.push(s.fmt.needMoreParams(nick, "INVITE"))
			return false
		}
		s.handleInvite(ctx, msg.Param(0), msg.Param(1))
	case "KICK":
		if len(msg.Params) < 2 {
			s.push(s.fmt.needMoreParams(nick, "KICK"))
			return false
		}
		reason := ""
		if len(msg.Params) > 2 {
			reason = msg.Trailing()
		}
		s.handleKick(ctx, msg.Param(0), msg.Param(1), reason)
	case "NICK":
		if len(msg.Params) < 1 {
			s.push(s.fmt.noNicknameGiven(nick))
			return false
		}
		s.handleNick(ctx, msg.Param(0))
	case "MOTD":
		s.sendMOTD(nick)
	case "PASS", "USER", "AUTHENTICATE":
		s.push(s.fmt.alreadyRegistered(nick))
	default:
		s.push(s.fmt.unknownCommand(nick, msg.Command))
	}
	return false
}

func (s *session) handleJoin(ctx context.Context, channel string) {
	nick := s.currentNick()

	replies, err := s.apply(ctx, domain.JoinChannel{ChannelRef: s.chanRef(channel)})
	if err != nil {
		s.sendError(err, "JOIN", channel, "")
		return
	}

	for _, reply := range replies {
		snapshot, ok := reply.(domain.ChannelSnapshot)
		if !ok {
			continue
		}
		s.rememberChannel(snapshot.Channel.ID, snapshot.Channel.Name)
		ircChannel := "#" + snapshot.Channel.Name
		s.push(s.fmt.join(nick, ircChannel))
		if snapshot.Channel.Topic != "" {
			s.push(s.fmt.topic(nick, ircChannel, snapshot.Channel.Topic))
		}
		s.handleNames(ctx, ircChannel)
	}
}

func (s *session) handlePart(ctx context.Context, channel, reason string) {
	nick := s.currentNick()

	if _, err := s.apply(ctx, domain.PartChannel{ChannelRef: s.chanRef(channel), Reason: reason}); err != nil {
		s.sendError(err, "PART", channel, "")
		return
	}
	s.push(s.fmt.part(nick, channel, reason))
}

func (s *session) handlePrivmsg(ctx context.Context, msg *Message) {
	nick := s.currentNick()
	if len(msg.Params) < 2 {
		s.push(s.fmt.needMoreParams(nick, "PRIVMSG"))
		return
	}
	target := msg.Param(0)
	text := msg.Trailing()

	if !strings.HasPrefix(target, "#") {
		// Direct messages are out of scope; only channels exist here.
		s.push(s.fmt.noSuchNick(nick, target))
		return
	}

	action := false
	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		action = true
		text = strings.TrimSuffix(strings.TrimPrefix(text, "\x01ACTION "), "\x01")
	}

	cmd := domain.SendMessage{
		ChannelRef: s.chanRef(target),
		Content:    text,
		Action:     action,
	}
	if _, err := s.apply(ctx, cmd); err != nil {
		s.sendError(err, "PRIVMSG", target, "")
	}
}

func (s *session) handleTopic(ctx context.Context, msg *Message) {
	nick := s.currentNick()
	if len(msg.Params) < 1 {
		s.push(s.fmt.needMoreParams(nick, "TOPIC"))
		return
	}
	channel := msg.Param(0)

	if len(msg.Params) == 1 {
		// Topic query resolves through the channel listing.
		replies, err := s.apply(ctx, domain.ListChannels{ServerID: s.srv.bootstrapID()})
		if err != nil {
			s.sendError(err, "TOPIC", channel, "")
			return
		}
		name := strings.TrimPrefix(channel, "#")
		for _, reply := range replies {
			listing, ok := reply.(domain.ChannelList)
			if !ok {
				continue
			}
			for _, ch := range listing.Channels {
				if strings.EqualFold(ch.Name, name) {
					s.rememberChannel(ch.ID, ch.Name)
					s.push(s.fmt.topic(nick, channel, ch.Topic))
					return
				}
			}
		}
		s.push(s.fmt.noSuchChannel(nick, channel))
		return
	}

	cmd := domain.SetTopic{ChannelRef: s.chanRef(channel), Topic: msg.Trailing()}
	if _, err := s.apply(ctx, cmd); err != nil {
		s.sendError(err, "TOPIC", channel, "")
	}
	// The TOPIC echo arrives through the TopicChanged broadcast.
}

func (s *session) handleNames(ctx context.Context, channel string) {
	nick := s.currentNick()

	replies, err := s.apply(ctx, domain.ListMembers{ChannelRef: s.chanRef(channel)})
	if err != nil {
		s.sendError(err, "NAMES", channel, "")
		return
	}
	for _, reply := range replies {
		listing, ok := reply.(domain.MemberList)
		if !ok {
			continue
		}
		names := make([]string, 0, len(listing.Members))
		for _, member := range listing.Members {
			names = append(names, member.Nick)
		}
		s.push(s.fmt.namReply(nick, channel, strings.Join(names, " ")))
	}
	s.push(s.fmt.endOfNames(nick, channel))
}

func (s *session) handleList(ctx context.Context) {
	nick := s.currentNick()

	replies, err := s.apply(ctx, domain.ListChannels{ServerID: s.srv.bootstrapID()})
	if err != nil {
		s.sendError(err, "LIST", "", "")
		return
	}
	for _, reply := range replies {
		listing, ok := reply.(domain.ChannelList)
		if !ok {
			continue
		}
		for _, ch := range listing.Channels {
			s.rememberChannel(ch.ID, ch.Name)
			s.push(s.fmt.list(nick, "#"+ch.Name, len(ch.Members), ch.Topic))
		}
	}
	s.push(s.fmt.listEnd(nick))
}

func (s *session) handleWho(ctx context.Context, mask string) {
	nick := s.currentNick()

	if !strings.HasPrefix(mask, "#") {
		s.push(s.fmt.endOfWho(nick, mask))
		return
	}

	replies, err := s.apply(ctx, domain.ListMembers{ChannelRef: s.chanRef(mask)})
	if err != nil {
		s.sendError(err, "WHO", mask, "")
		return
	}
	for _, reply := range replies {
		listing, ok := reply.(domain.MemberList)
		if !ok {
			continue
		}
		for _, member := range listing.Members {
			flags := "H"
			if member.Status == domain.PresenceAway {
				flags = "G"
			}
			s.push(s.fmt.whoReply(nick, mask, member.Nick, flags))
		}
	}
	s.push(s.fmt.endOfWho(nick, mask))
}

func (s *session) handleWhois(ctx context.Context, target string) {
	nick := s.currentNick()

	replies, err := s.apply(ctx, domain.GetMember{ServerID: s.srv.bootstrapID(), Nick: target})
	if err != nil {
		s.sendError(err, "WHOIS", "", target)
		return
	}
	for _, reply := range replies {
		info, ok := reply.(domain.MemberInfo)
		if !ok {
			continue
		}
		s.push(s.fmt.whoisUser(nick, info.Member.Nick, info.Member.Username))
		s.push(s.fmt.whoisServer(nick, info.Member.Nick))
		if info.Member.Status == domain.PresenceAway {
			away := info.Member.AwayMessage
			if away == "" {
				away = "Gone"
			}
			s.push(s.fmt.away(nick, info.Member.Nick, away))
		}
	}
	s.push(s.fmt.endOfWhois(nick, target))
}

func (s *session) handleAway(ctx context.Context, msg *Message) {
	nick := s.currentNick()
	message := msg.Trailing()
	away := len(msg.Params) > 0 && message != ""

	if _, err := s.apply(ctx, domain.SetAway{Away: away, Message: message}); err != nil {
		s.sendError(err, "AWAY", "", "")
		return
	}
	if away {
		s.push(s.fmt.nowAway(nick))
	} else {
		s.push(s.fmt.unaway(nick))
	}
}

func (s *session) handleInvite(ctx context.Context, targetNick, channel string) {
	nick := s.currentNick()

	cmd := domain.InviteMember{ChannelRef: s.chanRef(channel), Nick: targetNick}
	if _, err := s.apply(ctx, cmd); err != nil {
		s.sendError(err, "INVITE", channel, targetNick)
		return
	}
	s.push(s.fmt.inviting(nick, targetNick, channel))
}

func (s *session) handleKick(ctx context.Context, channel, targetNick, reason string) {
	cmd := domain.KickMember{ChannelRef: s.chanRef(channel), Nick: targetNick, Reason: reason}
	if _, err := s.apply(ctx, cmd); err != nil {
		s.sendError(err, "KICK", channel, targetNick)
	}
	// The KICK echo arrives through the MemberKicked broadcast.
}

func (s *session) handleNick(ctx context.Context, newNick string) {
	if _, err := s.apply(ctx, domain.SetNickname{ServerID: s.srv.bootstrapID(), Nickname: newNick}); err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr != nil && appErr.Code == apperrors.ErrCodeConflict {
			s.push(s.fmt.nicknameInUse(s.currentNick(), newNick))
			return
		}
		if appErr != nil && appErr.Code == apperrors.ErrCodeInvalidInput {
			s.push(s.fmt.erroneousNickname(s.currentNick(), newNick))
			return
		}
		s.sendError(err, "NICK", "", newNick)
		return
	}
	s.setNick(newNick)
	// The NICK echo arrives through the NickChanged broadcast.
}

// trySetNickname registers a per-server nickname for a client whose IRC
// nick differs from its account name. Failures fall back to the account
// name silently except for the in-use numeric.
func (s *session) trySetNickname(ctx context.Context, nick string) {
	if _, err := s.apply(ctx, domain.SetNickname{ServerID: s.srv.bootstrapID(), Nickname: nick}); err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr != nil && appErr.Code == apperrors.ErrCodeConflict {
			s.push(s.fmt.nicknameInUse(nick, nick))
		}
		s.setNick(s.username)
	}
}
