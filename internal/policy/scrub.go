package policy

import "regexp"

type scrubRule struct {
	kind    string
	pattern *regexp.Regexp
	mask    string
}

// The email pattern captures the character before the address because RE2 has
// no lookbehind; without the guard the user@host tail of a fediverse @handle
// scrubs as an email. Cards run before phones, or a spaced 16-digit card
// reads as one long phone number. Masks read as prose because scrubbed text
// can end up verbatim in a public reply.
var scrubRules = []scrubRule{
	{
		kind:    "email",
		pattern: regexp.MustCompile(`(^|[^@A-Za-z0-9._%+\-])[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		mask:    "${1}[email removed]",
	},
	{
		kind:    "card",
		pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`),
		mask:    "[card removed]",
	},
	{
		kind:    "phone",
		pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`),
		mask:    "[number removed]",
	},
}

// ScrubMention masks emails, card numbers and phone numbers in mention text
// before the text reaches the compose prompt or the chain's work log. The
// returned kinds name what was removed, in rule order.
func ScrubMention(text string) (string, []string) {
	out := text
	var kinds []string
	for _, rule := range scrubRules {
		next := rule.pattern.ReplaceAllString(out, rule.mask)
		if next != out {
			kinds = append(kinds, rule.kind)
		}
		out = next
	}
	return out, kinds
}
