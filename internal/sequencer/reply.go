package sequencer

import (
	"strings"
	"unicode"
)

type ReplyKind int

const (
	// ReplyDescription is free text describing a problem.
	ReplyDescription ReplyKind = iota
	ReplyAffirmative
	ReplyNegative
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyAffirmative:
		return "affirmative"
	case ReplyNegative:
		return "negative"
	default:
		return "description"
	}
}

var affirmativePhrases = map[string]bool{
	"oui": true, "ouais": true, "ok": true, "okay": true, "d'accord": true,
	"ça va": true, "ca va": true, "tout va bien": true, "je vais bien": true,
	"yes": true, "yep": true, "yeah": true, "fine": true, "i'm fine": true,
	"im fine": true, "i am fine": true, "all good": true, "i'm ok": true, "i am ok": true,
}

var negativePhrases = map[string]bool{
	"non": true, "no": true, "nope": true, "pas bien": true, "ça ne va pas": true,
	"ca ne va pas": true, "help": true, "aide": true, "au secours": true,
	"not ok": true, "not fine": true, "i need help": true, "j'ai besoin d'aide": true,
}

var affirmativeLeads = map[string]bool{
	"oui": true, "ouais": true, "ok": true, "okay": true, "yes": true, "yep": true, "yeah": true,
}

// ClassifyReply maps a spoken or typed reply to the confirmation answer it
// carries. Anything that is not a plain yes or no is treated as a
// description of the problem.
func ClassifyReply(reply string) ReplyKind {
	norm := normalizeReply(reply)
	if norm == "" {
		return ReplyDescription
	}
	if affirmativePhrases[norm] {
		return ReplyAffirmative
	}
	if negativePhrases[norm] {
		return ReplyNegative
	}

	first, _, _ := strings.Cut(norm, " ")
	if affirmativeLeads[first] && !containsNegation(norm) {
		return ReplyAffirmative
	}
	return ReplyDescription
}

func containsNegation(norm string) bool {
	for _, w := range strings.Fields(norm) {
		switch w {
		case "non", "no", "not", "pas", "mal", "help", "aide":
			return true
		}
	}
	return false
}

func normalizeReply(reply string) string {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.ReplaceAll(s, "’", "'")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
