package irc

import (
	"errors"
	"strings"
)

// MaxLineLength bounds one IRC line including CRLF, per RFC 2812. Longer
// input is a framing error and fatal to the connection.
const MaxLineLength = 512

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrMissingCommand = errors.New("missing command")
	ErrLineTooLong    = errors.New("line exceeds 512 bytes")
)

// Message is one IRC protocol line: [@tags] [:prefix] COMMAND params.
// Tags are only rendered outbound; inbound tags are parsed and ignored.
type Message struct {
	Tags    string
	Prefix  string
	Command string
	Params  []string

	// ForceTrailing renders the last param as trailing even when it needs
	// no escaping. PART/KICK/QUIT reasons and topics are conventionally
	// trailing regardless of content.
	ForceTrailing bool
}

// ParseLine parses a single IRC line without its trailing CRLF.
func ParseLine(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{}
	remaining := line

	// IRCv3 message tags
	if strings.HasPrefix(remaining, "@") {
		idx := strings.IndexByte(remaining, ' ')
		if idx < 0 {
			return nil, ErrMissingCommand
		}
		msg.Tags = remaining[1:idx]
		remaining = strings.TrimLeft(remaining[idx:], " ")
	}

	if strings.HasPrefix(remaining, ":") {
		idx := strings.IndexByte(remaining, ' ')
		if idx < 0 {
			return nil, ErrMissingCommand
		}
		msg.Prefix = remaining[1:idx]
		remaining = strings.TrimLeft(remaining[idx:], " ")
	}

	if idx := strings.IndexByte(remaining, ' '); idx >= 0 {
		msg.Command = strings.ToUpper(remaining[:idx])
		remaining = strings.TrimLeft(remaining[idx:], " ")
	} else {
		msg.Command = strings.ToUpper(remaining)
		remaining = ""
	}
	if msg.Command == "" {
		return nil, ErrMissingCommand
	}

	for remaining != "" {
		if strings.HasPrefix(remaining, ":") {
			// Trailing parameter takes everything after the colon.
			msg.Params = append(msg.Params, remaining[1:])
			break
		}
		if idx := strings.IndexByte(remaining, ' '); idx >= 0 {
			msg.Params = append(msg.Params, remaining[:idx])
			remaining = strings.TrimLeft(remaining[idx:], " ")
		} else {
			msg.Params = append(msg.Params, remaining)
			break
		}
	}

	return msg, nil
}

// String renders the message back to wire format without trailing CRLF.
func (m *Message) String() string {
	var b strings.Builder
	b.Grow(MaxLineLength)

	if m.Tags != "" {
		b.WriteByte('@')
		b.WriteString(m.Tags)
		b.WriteByte(' ')
	}
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)

	for i, param := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (m.ForceTrailing || strings.ContainsRune(param, ' ') || param == "" || strings.HasPrefix(param, ":")) {
			b.WriteByte(':')
		}
		// Strip CR/LF so user content cannot inject protocol lines.
		b.WriteString(sanitizeParam(param))
	}

	return b.String()
}

func sanitizeParam(param string) string {
	if !strings.ContainsAny(param, "\r\n") {
		return param
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ")
	return replacer.Replace(param)
}

// Param returns the i-th parameter or an empty string.
func (m *Message) Param(i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

// Trailing returns the last parameter or an empty string.
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}
