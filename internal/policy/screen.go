package policy

import (
	"regexp"
	"strings"
)

// ScreenDecision says whether a mention deserves a reply at all.
type ScreenDecision struct {
	Skip   bool
	Reason string
}

var (
	promoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(buy|cheap|free)\s+(followers|likes|views)\b`),
		regexp.MustCompile(`(?i)\b(airdrops?|giveaways?)\b.*\b(crypto|token|coin|nft)\b`),
		regexp.MustCompile(`(?i)\b(hot singles|casino|jackpot)\b`),
	}
	handlePattern = regexp.MustCompile(`@[A-Za-z0-9_]+(?:@[A-Za-z0-9.\-]+)?`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

const maxMentionLength = 2000

// ScreenMention filters out mentions the bot should never answer: its own
// posts, other bots, promo spam, and mentions with nothing left to answer
// once the handles are removed.
func ScreenMention(selfAcct, acct string, isBot bool, text string) ScreenDecision {
	if acct != "" && strings.EqualFold(acct, selfAcct) {
		return ScreenDecision{Skip: true, Reason: "own account"}
	}
	if isBot {
		return ScreenDecision{Skip: true, Reason: "bot author"}
	}

	body := StripHandles(text)
	if body == "" {
		return ScreenDecision{Skip: true, Reason: "no content"}
	}
	if len(body) > maxMentionLength {
		return ScreenDecision{Skip: true, Reason: "too long"}
	}

	lower := strings.ToLower(body)
	for _, re := range promoPatterns {
		if re.MatchString(lower) {
			return ScreenDecision{Skip: true, Reason: "promotional content"}
		}
	}
	return ScreenDecision{}
}

// StripHandles removes @user and @user@host tokens and collapses whitespace.
func StripHandles(text string) string {
	out := handlePattern.ReplaceAllString(text, " ")
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
