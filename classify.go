package anamnesis

import (
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("```")

var technicalSignals = []string{
	"function", "class ", "import ", "package ", "def ", "const ", "var ",
	"algorithm", "api", "database", "syntax", "compile", "error:", "exception",
	"returns", "parameter", "argument", "variable", "struct", "interface",
}

var proceduralSignals = []string{
	"step 1", "step 2", "first,", "second,", "third,", "then,", "next,",
	"finally,", "how to", "instructions:", "follow these", "procedure",
}

var ephemeralSignals = []string{
	"ok", "okay", "sure", "yes", "no", "thanks", "thank you", "got it",
	"sounds good", "cool", "nice", "great", "yep", "nope", "alright",
}

// ClassifyMemoryType applies the rule-based text heuristic from spec §4.1:
// code fences or technical keywords select factual; ordinal/step markers
// select procedural; short affirmatives select ephemeral; anything else
// defaults to conversational.
func ClassifyMemoryType(userText, assistantText string) MemoryType {
	combined := strings.ToLower(userText + " " + assistantText)

	if codeFenceRe.MatchString(userText) || codeFenceRe.MatchString(assistantText) {
		return MemoryFactual
	}
	for _, s := range technicalSignals {
		if strings.Contains(combined, s) {
			return MemoryFactual
		}
	}
	for _, s := range proceduralSignals {
		if strings.Contains(combined, s) {
			return MemoryProcedural
		}
	}
	if isShortAffirmative(strings.TrimSpace(strings.ToLower(userText))) {
		return MemoryEphemeral
	}

	return MemoryConversational
}

func isShortAffirmative(text string) bool {
	if len(text) == 0 || len(text) > 24 {
		return false
	}
	trimmed := strings.Trim(text, ".!? ")
	for _, s := range ephemeralSignals {
		if trimmed == s {
			return true
		}
	}
	return false
}
