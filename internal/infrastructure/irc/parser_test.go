package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineCommandOnly(t *testing.T) {
	msg, err := ParseLine("LIST")
	require.NoError(t, err)
	assert.Equal(t, "LIST", msg.Command)
	assert.Empty(t, msg.Params)
}

func TestParseLineFoldsCommandCase(t *testing.T) {
	msg, err := ParseLine("privmsg #general :hi")
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", msg.Command)
}

func TestParseLineMiddleAndTrailingParams(t *testing.T) {
	msg, err := ParseLine("PRIVMSG #general :hello world, with : colons")
	require.NoError(t, err)
	require.Len(t, msg.Params, 2)
	assert.Equal(t, "#general", msg.Param(0))
	assert.Equal(t, "hello world, with : colons", msg.Trailing())
}

func TestParseLinePrefix(t *testing.T) {
	msg, err := ParseLine(":alice!alice@example JOIN #general")
	require.NoError(t, err)
	assert.Equal(t, "alice!alice@example", msg.Prefix)
	assert.Equal(t, "JOIN", msg.Command)
	assert.Equal(t, []string{"#general"}, msg.Params)
}

func TestParseLineTags(t *testing.T) {
	msg, err := ParseLine("@time=2024-01-01T00:00:00Z;msgid=abc :alice PRIVMSG #general :hi")
	require.NoError(t, err)
	assert.Equal(t, "time=2024-01-01T00:00:00Z;msgid=abc", msg.Tags)
	assert.Equal(t, "alice", msg.Prefix)
	assert.Equal(t, "PRIVMSG", msg.Command)
}

func TestParseLineStripsCRLF(t *testing.T) {
	msg, err := ParseLine("PING token\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"token"}, msg.Params)
}

func TestParseLineCollapsesParamSpacing(t *testing.T) {
	msg, err := ParseLine("MODE   #general   +o   alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"#general", "+o", "alice"}, msg.Params)
}

func TestParseLineErrors(t *testing.T) {
	_, err := ParseLine("")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = ParseLine("\r\n")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	// a prefix with nothing after it carries no command
	_, err = ParseLine(":prefix-only")
	assert.ErrorIs(t, err, ErrMissingCommand)

	_, err = ParseLine("@tags-only")
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestMessageStringRendersTrailingColon(t *testing.T) {
	msg := &Message{
		Prefix:  "parley",
		Command: "PRIVMSG",
		Params:  []string{"#general", "hello world"},
	}
	assert.Equal(t, ":parley PRIVMSG #general :hello world", msg.String())

	// empty and colon-leading trailing params also need the marker
	msg = &Message{Command: "TOPIC", Params: []string{"#general", ""}}
	assert.Equal(t, "TOPIC #general :", msg.String())

	msg = &Message{Command: "PRIVMSG", Params: []string{"#general", ":)"}}
	assert.Equal(t, "PRIVMSG #general ::)", msg.String())

	// single-word reasons can be forced trailing
	msg = &Message{Command: "PART", Params: []string{"#general", "bye"}, ForceTrailing: true}
	assert.Equal(t, "PART #general :bye", msg.String())
}

func TestMessageStringSingleWordTrailingNeedsNoColon(t *testing.T) {
	msg := &Message{Command: "JOIN", Params: []string{"#general"}}
	assert.Equal(t, "JOIN #general", msg.String())
}

func TestMessageStringRendersTags(t *testing.T) {
	msg := &Message{
		Tags:    "msgid=abc",
		Prefix:  "parley",
		Command: "PRIVMSG",
		Params:  []string{"#general", "hi"},
	}
	assert.Equal(t, "@msgid=abc :parley PRIVMSG #general hi", msg.String())
}

func TestMessageStringSanitizesInjectedLineBreaks(t *testing.T) {
	msg := &Message{
		Command: "PRIVMSG",
		Params:  []string{"#general", "hello\r\nQUIT :gotcha"},
	}
	out := msg.String()
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\n")
}

func TestParseLineRoundTrip(t *testing.T) {
	lines := []string{
		":parley 001 alice :Welcome to Parley, alice!",
		":alice!alice@parley PART #general :had enough",
		"PONG parley token",
	}
	for _, line := range lines {
		msg, err := ParseLine(line)
		require.NoError(t, err)
		assert.Equal(t, line, msg.String())
	}
}

func TestParamOutOfRange(t *testing.T) {
	msg, err := ParseLine("NICK alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Param(0))
	assert.Equal(t, "", msg.Param(5))
}

func TestFormatterNumericReplies(t *testing.T) {
	f := formatter{serverName: "parley"}

	assert.Equal(t, ":parley 001 alice :Welcome to Parley, alice!", f.welcome("alice"))
	assert.Equal(t, ":parley 331 alice #general :No topic is set", f.topic("alice", "#general", ""))
	assert.Equal(t, ":parley 332 alice #general :release plans", f.topic("alice", "#general", "release plans"))
	assert.Equal(t, ":parley 353 alice = #general :@alice bob", f.namReply("alice", "#general", "@alice bob"))
	assert.Equal(t, ":parley 366 alice #general :End of /NAMES list", f.endOfNames("alice", "#general"))
	assert.Equal(t, ":parley 322 alice #general 3 :release plans", f.list("alice", "#general", 3, "release plans"))
	assert.Equal(t, ":parley 433 * alice :Nickname is already in use", f.nicknameInUse("*", "alice"))
	assert.Equal(t, ":parley 263 alice JOIN :Please wait a while and try again.", f.tryAgain("alice", "JOIN"))
}

func TestFormatterUserPrefixedLines(t *testing.T) {
	f := formatter{serverName: "parley"}

	assert.Equal(t, ":alice!alice@parley JOIN #general", f.join("alice", "#general"))
	assert.Equal(t, ":alice!alice@parley PART #general :bye", f.part("alice", "#general", "bye"))
	assert.Equal(t, ":alice!alice@parley PART #general", f.part("alice", "#general", ""))
	assert.Equal(t, ":alice!alice@parley PRIVMSG #general :hello world", f.privmsg("alice", "#general", "hello world"))
	assert.Equal(t, ":alice!alice@parley NICK al", f.nickChange("alice", "al"))
	assert.Equal(t, ":alice!alice@parley KICK #general bob :spam", f.kick("alice", "#general", "bob", "spam"))
	// a kick without a reason echoes the target nick, still as trailing
	assert.Equal(t, ":alice!alice@parley KICK #general bob :bob", f.kick("alice", "#general", "bob", ""))
}

func TestFormatterServerLines(t *testing.T) {
	f := formatter{serverName: "parley"}

	assert.Equal(t, ":parley PONG parley token", f.pong("token"))
	assert.Equal(t, ":parley NOTICE alice :slow down", f.notice("alice", "slow down"))
	assert.Equal(t, "ERROR :closing link", f.errorLine("closing link"))
}
