// Package markup converts lightweight markup between the chat dialect (Slack
// mrkdwn) and the ticket dialect (Markdown). Fenced blocks and inline code
// spans are copied through untouched.
package markup

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	fence     = "```"
	backtick  = "`"
	matchWait = 250 * time.Millisecond
)

type rewrite struct {
	pattern *regexp2.Regexp
	replace string
}

func mustPattern(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = matchWait
	return re
}

func mustRewrite(pattern, replace string) rewrite {
	return rewrite{pattern: mustPattern(pattern), replace: replace}
}

// dialect is one direction of conversion. Link rules run on whole prose;
// emphasis rules only between protected runs.
type dialect struct {
	links    []rewrite
	emphasis []rewrite
}

// protectedRun matches the URL part of a Markdown link, a chat reference up to
// its label, and bare URLs. Emphasis markers inside them are literal.
var protectedRun = mustPattern(`\]\([^)]*\)|<[^|>\s]*|https?://[^\s<>|)\]]+`)

var chatToTicket = dialect{
	links: []rewrite{
		mustRewrite(`<(https?://[^|>]+)\|([^>]+)>`, "[$2]($1)"),
		mustRewrite(`<(https?://[^>]+)>`, "$1"),
	},
	emphasis: []rewrite{
		mustRewrite(`(?<!~)~([^~]+)~(?!~)`, "~~$1~~"),
		mustRewrite(`(?<!\*)\*([^*]+)\*(?!\*)`, "**$1**"),
		mustRewrite(`(?<!_)_([^_]+)_(?!_)`, "*$1*"),
	},
}

// Italic runs before bold: single-star italics become underscores before
// double-star bold collapses to the single-star chat form.
var ticketToChat = dialect{
	links: []rewrite{
		mustRewrite(`(?<!\!)\[([^\]]+)\]\((https?://[^)]+)\)`, "<$2|$1>"),
	},
	emphasis: []rewrite{
		mustRewrite(`~~([^~]+)~~`, "~$1~"),
		mustRewrite(`(?<!\*)\*([^*]+)\*(?!\*)`, "_$1_"),
		mustRewrite(`\*\*([^*]+)\*\*`, "*$1*"),
	},
}

// ChatToTicket rewrites chat markup as ticket Markdown.
func ChatToTicket(input string) string {
	return translate(input, chatToTicket)
}

// TicketToChat rewrites ticket Markdown as chat markup.
func TicketToChat(input string) string {
	return translate(input, ticketToChat)
}

func translate(input string, d dialect) string {
	if input == "" {
		return input
	}

	var out strings.Builder
	out.Grow(len(input))

	rest := input
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(fence):], fence)
		if end < 0 {
			break
		}
		end += start + 2*len(fence)

		out.WriteString(translateInline(rest[:start], d))
		out.WriteString(rest[start:end])
		rest = rest[end:]
	}
	out.WriteString(translateInline(rest, d))
	return out.String()
}

// translateInline toggles between prose and code at every backtick. An
// unmatched backtick leaves the remainder as code.
func translateInline(segment string, d dialect) string {
	if segment == "" {
		return segment
	}

	parts := strings.Split(segment, backtick)
	for i := range parts {
		if i%2 == 0 {
			parts[i] = convertProse(parts[i], d)
		}
	}
	return strings.Join(parts, backtick)
}

func convertProse(prose string, d dialect) string {
	if prose == "" {
		return prose
	}
	runes := []rune(rewriteAll(prose, d.links))

	var out strings.Builder
	last := 0
	m, err := protectedRun.FindRunesMatch(runes)
	for err == nil && m != nil {
		out.WriteString(rewriteAll(string(runes[last:m.Index]), d.emphasis))
		out.WriteString(m.String())
		last = m.Index + m.Length
		m, err = protectedRun.FindNextMatch(m)
	}
	if err != nil {
		// match timeout; leave the rest as is
		out.WriteString(string(runes[last:]))
		return out.String()
	}
	out.WriteString(rewriteAll(string(runes[last:]), d.emphasis))
	return out.String()
}

func rewriteAll(text string, rules []rewrite) string {
	if text == "" {
		return text
	}
	converted := text
	for _, r := range rules {
		next, err := r.pattern.Replace(converted, r.replace, -1, -1)
		if err != nil {
			// match timeout; keep what we have
			continue
		}
		converted = next
	}
	return converted
}
