package dialog

import (
	"regexp"
	"strings"
)

// An utterance is uncooperative when it has fewer than minContentWords
// content words AND carries no location, status, or time information. A
// clear "yeah" is uncooperative but not garbled; static noise is garbled
// but not uncooperative. The two are never conflated.
const minContentWords = 3

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "uh": true, "um": true, "hmm": true,
	"yeah": true, "yep": true, "yes": true, "no": true, "nope": true,
	"ok": true, "okay": true, "sure": true, "fine": true, "good": true,
	"huh": true, "what": true, "dunno": true, "maybe": true,
}

var statusWords = map[string]bool{
	"driving": true, "rolling": true, "moving": true, "delayed": true,
	"arrived": true, "arriving": true, "unloading": true, "loading": true,
	"stopped": true, "stuck": true, "parked": true, "waiting": true,
	"traffic": true, "detention": true, "delivered": true, "empty": true,
}

var locationHints = []string{
	"i-", "interstate", "highway", "hwy", "route", "rt ", "us-",
	"exit", "mile marker", "rest stop", "truck stop", "near", "outside",
	"past", "north of", "south of", "east of", "west of",
}

// timePattern matches clock times, meridiem markers, and relative day words.
var timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*(am|pm)|\d{1,2}:\d{2}|tomorrow|tonight|today|morning|afternoon|evening|noon|midnight|hour|hours|minutes|o'?clock|eta)\b`)

func isSilent(text string) bool {
	return strings.TrimSpace(text) == ""
}

// isSubstantive reports whether the reply moves the conversation forward:
// enough content words, or any location/status/time signal.
func isSubstantive(text string) bool {
	if isSilent(text) {
		return false
	}
	if contentWordCount(text) >= minContentWords {
		return true
	}
	return hasStatusWord(text) || hasLocationHint(text) || hasTimeExpression(text)
}

func contentWordCount(text string) int {
	n := 0
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" || fillerWords[w] {
			continue
		}
		n++
	}
	return n
}

func hasStatusWord(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if statusWords[w] {
			return true
		}
	}
	return false
}

func hasLocationHint(text string) bool {
	lowered := strings.ToLower(text)
	for _, h := range locationHints {
		if strings.Contains(lowered, h) {
			return true
		}
	}
	return false
}

func hasTimeExpression(text string) bool {
	return timePattern.MatchString(text)
}
