package transform

import (
	"strconv"
	"strings"
	"time"
)

// formatTokens are matched longest first at each template position.
var formatTokens = []string{"YYYY", "SSS", "YY", "MM", "DD", "HH", "mm", "ss"}

// FormatTimestamp renders t with a token template. Recognized tokens are
// YYYY, YY, MM, DD, HH (24h), mm, ss and SSS (milliseconds); everything
// else is copied through.
func FormatTimestamp(t time.Time, template string) string {
	var b strings.Builder
	b.Grow(len(template) + 8)

	for i := 0; i < len(template); {
		token := matchToken(template[i:])
		if token == "" {
			b.WriteByte(template[i])
			i++
			continue
		}
		b.WriteString(renderToken(t, token))
		i += len(token)
	}

	return b.String()
}

func matchToken(s string) string {
	for _, tok := range formatTokens {
		if strings.HasPrefix(s, tok) {
			return tok
		}
	}
	return ""
}

func renderToken(t time.Time, token string) string {
	switch token {
	case "YYYY":
		return pad(t.Year(), 4)
	case "YY":
		return pad(t.Year()%100, 2)
	case "MM":
		return pad(int(t.Month()), 2)
	case "DD":
		return pad(t.Day(), 2)
	case "HH":
		return pad(t.Hour(), 2)
	case "mm":
		return pad(t.Minute(), 2)
	case "ss":
		return pad(t.Second(), 2)
	case "SSS":
		return pad(t.Nanosecond()/int(time.Millisecond), 3)
	default:
		return token
	}
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
