package inbound

import "strings"

// Reply is the meaning of a free-text answer.
type Reply int

const (
	ReplyUnknown Reply = iota
	ReplyAffirmative
	ReplyNegative
)

func (r Reply) String() string {
	switch r {
	case ReplyAffirmative:
		return "affirmative"
	case ReplyNegative:
		return "negative"
	}
	return "unknown"
}

var (
	affirmative = map[string]bool{"OUI": true, "O": true, "YES": true, "Y": true, "1": true, "OK": true}
	negative    = map[string]bool{"NON": true, "N": true, "NO": true, "0": true, "NON MERCI": true}
)

// Classify matches the whole trimmed, case-folded text against the fixed
// vocabularies. Anything else, "oui merci" included, is ReplyUnknown.
func Classify(text string) Reply {
	t := strings.ToUpper(strings.Join(strings.Fields(text), " "))
	switch {
	case affirmative[t]:
		return ReplyAffirmative
	case negative[t]:
		return ReplyNegative
	}
	return ReplyUnknown
}
