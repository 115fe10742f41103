// Package command parses the inline `$name[=value]` commands that chat users
// embed in thread replies to control the resulting ticket entry.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/ticket-bridge/internal/domain"
)

// Recognized command names, lower-cased.
const (
	Hours      = "actualhours"
	Internal   = "internal"
	Resolution = "resolution"
	Ninja      = "ninja"
	EmailCc    = "emailcc"
	Cc         = "cc"
	Note       = "note"
)

var aliases = map[string]string{
	"hours": Hours,
}

var known = map[string]bool{
	Hours: true, Internal: true, Resolution: true, Ninja: true, EmailCc: true, Cc: true, Note: true,
}

// Command is one parsed token.
type Command struct {
	Name  string // canonical lower-case name
	Raw   string // token as written
	Value string
}

// Parsed is the result of Parse.
type Parsed struct {
	Commands []Command
	Unknown  []Command
	Text     string
}

// HasCommands reports whether any recognized command was found.
func (p Parsed) HasCommands() bool {
	return len(p.Commands) > 0
}

// WantsNote reports whether the reply asked to become a note.
func (p Parsed) WantsNote() bool {
	for _, c := range p.Commands {
		if c.Name == Note {
			return true
		}
	}
	return false
}

// Apply sets the draft fields for each recognized command in order of
// appearance. Commands with unusable values are returned and leave the
// draft untouched.
func (p Parsed) Apply(draft *domain.TimeEntryDraft) []error {
	var errs []error
	for _, c := range p.Commands {
		switch c.Name {
		case Hours:
			hours, err := strconv.ParseFloat(c.Value, 64)
			if err != nil || hours < 0 {
				errs = append(errs, fmt.Errorf("%s: invalid hours %q", c.Raw, c.Value))
				continue
			}
			draft.ActualHours = hours
		case Internal:
			draft.InternalAnalysis = true
			draft.EmailContact = false
			draft.DetailDescription = false
		case Resolution:
			draft.Resolution = true
		case Ninja:
			draft.EmailContact = false
			draft.EmailResource = false
			draft.EmailCc = false
		case EmailCc:
			draft.EmailCc = true
		case Cc:
			if c.Value == "" {
				errs = append(errs, fmt.Errorf("%s: missing recipient", c.Raw))
				continue
			}
			draft.Cc = c.Value
			draft.EmailCc = true
		}
	}
	return errs
}

// Parse extracts commands from text. Recognized tokens are removed from the
// returned Text; unknown ones stay in place.
func Parse(text string) Parsed {
	var (
		parsed Parsed
		out    strings.Builder
	)
	i := 0
	for i < len(text) {
		if text[i] != '$' || i+1 >= len(text) || !isLetter(text[i+1]) {
			out.WriteByte(text[i])
			i++
			continue
		}

		end, cmd := scanToken(text, i)
		name := strings.ToLower(cmd.Name)
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		cmd.Name = name

		if !known[name] {
			parsed.Unknown = append(parsed.Unknown, cmd)
			out.WriteString(text[i:end])
			i = end
			continue
		}
		parsed.Commands = append(parsed.Commands, cmd)

		// drop one of the spaces around the removed token
		if end < len(text) && text[end] == ' ' && (out.Len() == 0 || strings.HasSuffix(out.String(), " ")) {
			end++
		}
		i = end
	}
	parsed.Text = strings.TrimSpace(out.String())
	return parsed
}

// scanToken reads `$name`, an optional `=`, and an optional attached value
// starting at text[start] == '$'. It returns the index just past the token.
func scanToken(text string, start int) (int, Command) {
	i := start + 1
	for i < len(text) && isIdent(text[i]) {
		i++
	}
	cmd := Command{Name: text[start+1 : i]}

	assigned := false
	if i < len(text) && text[i] == '=' {
		assigned = true
		i++
	}

	if i < len(text) {
		switch text[i] {
		case '"':
			if closing := strings.IndexByte(text[i+1:], '"'); closing >= 0 {
				cmd.Value = normalizeValue(text[i+1 : i+1+closing])
				i += closing + 2
			}
		case '<':
			if closing := strings.IndexByte(text[i:], '>'); closing >= 0 {
				cmd.Value = normalizeValue(text[i : i+closing+1])
				i += closing + 1
			}
		default:
			if assigned {
				j := i
				for j < len(text) && !isSpace(text[j]) {
					j++
				}
				cmd.Value = normalizeValue(text[i:j])
				i = j
			}
		}
	}
	cmd.Raw = text[start:i]
	return i, cmd
}

// normalizeValue unwraps chat link syntax such as <mailto:a@b.com|a@b.com>.
func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		v = v[1 : len(v)-1]
	}
	if before, _, found := strings.Cut(v, "|"); found {
		v = before
	}
	v = strings.TrimPrefix(v, "mailto:")
	return v
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdent(b byte) bool {
	return isLetter(b) || (b >= '0' && b <= '9') || b == '_'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
