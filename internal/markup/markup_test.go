package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatToTicket(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"emphasis":      {"*bold* _it_ ~gone~", "**bold** *it* ~~gone~~"},
		"labeled link":  {"see <https://x.io/doc|the doc>", "see [the doc](https://x.io/doc)"},
		"bare link":     {"<https://x.io/~user/>", "https://x.io/~user/"},
		"inline code":   {"run `rm *tmp*` then *done*", "run `rm *tmp*` then **done**"},
		"fenced block":  {"```\n*keep*\n``` and *this*", "```\n*keep*\n``` and **this**"},
		"plain":         {"VPN down", "VPN down"},
		"empty":         {"", ""},
		"unclosed code": {"```open *x*", "```open *x*"},
		"link url kept": {"<http://a.io/x_y_z|docs> and _it_", "[docs](http://a.io/x_y_z) and *it*"},
		"bare url kept": {"<https://x.io/a_b_c> *ok*", "https://x.io/a_b_c **ok**"},
		"mention":       {"<@U_1> said _hi_", "<@U_1> said *hi*"},
		"lone angle":    {"a < b *c*", "a < b **c**"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ChatToTicket(tc.in))
		})
	}
}

func TestTicketToChat(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"emphasis":      {"**bold** *it* ~~gone~~", "*bold* _it_ ~gone~"},
		"link":          {"[the doc](https://x.io/doc)", "<https://x.io/doc|the doc>"},
		"image kept":    {"![shot](https://x.io/s.png)", "![shot](https://x.io/s.png)"},
		"inline code":   {"`**raw**` and **bold**", "`**raw**` and *bold*"},
		"fenced block":  {"**a**\n```go\nx := *p\n```\n*b*", "*a*\n```go\nx := *p\n```\n_b_"},
		"link url kept": {"[x](http://a.io/a*b*c) **y**", "<http://a.io/a*b*c|x> *y*"},
		"bare url kept": {"see https://x.io/~a~ and ~~b~~", "see https://x.io/~a~ and ~b~"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, TicketToChat(tc.in))
		})
	}
}

func TestSimpleRoundTrip(t *testing.T) {
	in := "*bold* and _italic_ and <https://x.io|link>"
	assert.Equal(t, in, TicketToChat(ChatToTicket(in)))
}
