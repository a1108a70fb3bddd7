package irc

import (
	"fmt"
	"strconv"
)

const serverVersion = "0.1.0"

// formatter builds reply lines carrying this instance's server name. All
// methods return wire format without CRLF; the session writer appends it.
type formatter struct {
	serverName string
}

func (f formatter) serverReply(numeric string, params ...string) string {
	return (&Message{Prefix: f.serverName, Command: numeric, Params: params}).String()
}

func (f formatter) userPrefix(nick string) string {
	return fmt.Sprintf("%s!%s@%s", nick, nick, f.serverName)
}

func (f formatter) welcome(nick string) string {
	return f.serverReply(RPL_WELCOME, nick, fmt.Sprintf("Welcome to Parley, %s!", nick))
}

func (f formatter) yourHost(nick string) string {
	return f.serverReply(RPL_YOURHOST, nick, fmt.Sprintf("Your host is %s, running version %s", f.serverName, serverVersion))
}

func (f formatter) created(nick string) string {
	return f.serverReply(RPL_CREATED, nick, "This server was created today")
}

func (f formatter) myInfo(nick string) string {
	return f.serverReply(RPL_MYINFO, nick, f.serverName, serverVersion, "o", "o")
}

func (f formatter) motdStart(nick string) string {
	return f.serverReply(RPL_MOTDSTART, nick, fmt.Sprintf("- %s Message of the day -", f.serverName))
}

func (f formatter) motdLine(nick, line string) string {
	return f.serverReply(RPL_MOTD, nick, "- "+line)
}

func (f formatter) endOfMOTD(nick string) string {
	return f.serverReply(RPL_ENDOFMOTD, nick, "End of /MOTD command")
}

func (f formatter) noMOTD(nick string) string {
	return f.serverReply(ERR_NOMOTD, nick, "MOTD File is missing")
}

func (f formatter) join(nick, channel string) string {
	return (&Message{Prefix: f.userPrefix(nick), Command: "JOIN", Params: []string{channel}}).String()
}

func (f formatter) part(nick, channel, reason string) string {
	if reason == "" {
		return (&Message{Prefix: f.userPrefix(nick), Command: "PART", Params: []string{channel}}).String()
	}
	return (&Message{Prefix: f.userPrefix(nick), Command: "PART", Params: []string{channel, reason}, ForceTrailing: true}).String()
}

func (f formatter) privmsg(nick, target, text string) string {
	return (&Message{Prefix: f.userPrefix(nick), Command: "PRIVMSG", Params: []string{target, text}}).String()
}

func (f formatter) kick(actorNick, channel, targetNick, reason string) string {
	if reason == "" {
		reason = targetNick
	}
	return (&Message{Prefix: f.userPrefix(actorNick), Command: "KICK", Params: []string{channel, targetNick, reason}, ForceTrailing: true}).String()
}

func (f formatter) invite(actorNick, targetNick, channel string) string {
	return (&Message{Prefix: f.userPrefix(actorNick), Command: "INVITE", Params: []string{targetNick, channel}}).String()
}

func (f formatter) nickChange(oldNick, newNick string) string {
	return (&Message{Prefix: f.userPrefix(oldNick), Command: "NICK", Params: []string{newNick}}).String()
}

func (f formatter) topicChange(nick, channel, topic string) string {
	return (&Message{Prefix: f.userPrefix(nick), Command: "TOPIC", Params: []string{channel, topic}, ForceTrailing: true}).String()
}

func (f formatter) quit(nick, reason string) string {
	if reason == "" {
		return (&Message{Prefix: f.userPrefix(nick), Command: "QUIT"}).String()
	}
	return (&Message{Prefix: f.userPrefix(nick), Command: "QUIT", Params: []string{reason}, ForceTrailing: true}).String()
}

func (f formatter) topic(nick, channel, topic string) string {
	if topic == "" {
		return f.serverReply(RPL_NOTOPIC, nick, channel, "No topic is set")
	}
	return f.serverReply(RPL_TOPIC, nick, channel, topic)
}

func (f formatter) namReply(nick, channel, names string) string {
	return f.serverReply(RPL_NAMREPLY, nick, "=", channel, names)
}

func (f formatter) endOfNames(nick, channel string) string {
	return f.serverReply(RPL_ENDOFNAMES, nick, channel, "End of /NAMES list")
}

func (f formatter) list(nick, channel string, memberCount int, topic string) string {
	return f.serverReply(RPL_LIST, nick, channel, strconv.Itoa(memberCount), topic)
}

func (f formatter) listEnd(nick string) string {
	return f.serverReply(RPL_LISTEND, nick, "End of /LIST")
}

func (f formatter) whoReply(nick, channel, targetNick, flags string) string {
	return f.serverReply(RPL_WHOREPLY, nick, channel, targetNick, f.serverName, f.serverName, targetNick, flags, "0 "+targetNick)
}

func (f formatter) endOfWho(nick, mask string) string {
	return f.serverReply(RPL_ENDOFWHO, nick, mask, "End of /WHO list")
}

func (f formatter) whoisUser(requestor, nick, username string) string {
	return f.serverReply(RPL_WHOISUSER, requestor, nick, username, f.serverName, "*", username)
}

func (f formatter) whoisServer(requestor, nick string) string {
	return f.serverReply(RPL_WHOISSERVER, requestor, nick, f.serverName, "Parley IRC-compatible chat server")
}

func (f formatter) away(requestor, nick, message string) string {
	return f.serverReply(RPL_AWAY, requestor, nick, message)
}

func (f formatter) endOfWhois(requestor, nick string) string {
	return f.serverReply(RPL_ENDOFWHOIS, requestor, nick, "End of /WHOIS list")
}

func (f formatter) unaway(nick string) string {
	return f.serverReply(RPL_UNAWAY, nick, "You are no longer marked as being away")
}

func (f formatter) nowAway(nick string) string {
	return f.serverReply(RPL_NOWAWAY, nick, "You have been marked as being away")
}

func (f formatter) inviting(nick, targetNick, channel string) string {
	return f.serverReply(RPL_INVITING, nick, targetNick, channel)
}

func (f formatter) pong(token string) string {
	return (&Message{Prefix: f.serverName, Command: "PONG", Params: []string{f.serverName, token}}).String()
}

func (f formatter) notice(nick, text string) string {
	return (&Message{Prefix: f.serverName, Command: "NOTICE", Params: []string{nick, text}}).String()
}

func (f formatter) errorLine(text string) string {
	return (&Message{Command: "ERROR", Params: []string{text}}).String()
}

func (f formatter) noSuchNick(nick, target string) string {
	return f.serverReply(ERR_NOSUCHNICK, nick, target, "No such nick/channel")
}

func (f formatter) noSuchChannel(nick, channel string) string {
	return f.serverReply(ERR_NOSUCHCHANNEL, nick, channel, "No such channel")
}

func (f formatter) unknownCommand(nick, command string) string {
	return f.serverReply(ERR_UNKNOWNCOMMAND, nick, command, "Unknown command")
}

func (f formatter) noNicknameGiven(nick string) string {
	return f.serverReply(ERR_NONICKNAMEGIVEN, nick, "No nickname given")
}

func (f formatter) erroneousNickname(nick, wanted string) string {
	return f.serverReply(ERR_ERRONEUSNICKNAME, nick, wanted, "Erroneous nickname")
}

func (f formatter) nicknameInUse(nick, wanted string) string {
	return f.serverReply(ERR_NICKNAMEINUSE, nick, wanted, "Nickname is already in use")
}

func (f formatter) notOnChannel(nick, channel string) string {
	return f.serverReply(ERR_NOTONCHANNEL, nick, channel, "You're not on that channel")
}

func (f formatter) notRegistered() string {
	return f.serverReply(ERR_NOTREGISTERED, "*", "You have not registered")
}

func (f formatter) needMoreParams(nick, command string) string {
	return f.serverReply(ERR_NEEDMOREPARAMS, nick, command, "Not enough parameters")
}

func (f formatter) alreadyRegistered(nick string) string {
	return f.serverReply(ERR_ALREADYREGISTERED, nick, "You may not reregister")
}

func (f formatter) passwordMismatch(nick string) string {
	return f.serverReply(ERR_PASSWDMISMATCH, nick, "Password incorrect")
}

func (f formatter) noPrivileges(nick string) string {
	return f.serverReply(ERR_NOPRIVILEGES, nick, "Permission Denied- You're not an IRC operator")
}

func (f formatter) chanOpPrivsNeeded(nick, channel string) string {
	return f.serverReply(ERR_CHANOPRIVSNEEDED, nick, channel, "You're not channel operator")
}

func (f formatter) tryAgain(nick, command string) string {
	return f.serverReply(RPL_TRYAGAIN, nick, command, "Please wait a while and try again.")
}

func (f formatter) loggedIn(nick, username string) string {
	return f.serverReply(RPL_LOGGEDIN, nick, f.userPrefix(nick), username, fmt.Sprintf("You are now logged in as %s", username))
}

func (f formatter) saslSuccess(nick string) string {
	return f.serverReply(RPL_SASLSUCCESS, nick, "SASL authentication successful")
}

func (f formatter) saslFail(nick string) string {
	return f.serverReply(ERR_SASLFAIL, nick, "SASL authentication failed")
}
