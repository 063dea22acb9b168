package anamnesis

import (
	"context"
	"strings"
	"time"
)

// GenerateOptions carries model name, sampling, and timeout knobs for a
// single language-model call (C9).
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// LanguageModelClient is the collaborator interface for C9: prompt in,
// opaque text out. JSON extraction from free-text replies is the core's
// own responsibility (ExtractJSON below), not the client's.
type LanguageModelClient interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// ExtractJSON strips a markdown code fence if present and otherwise
// locates the outermost balanced {...} or [...] span, returning the raw
// JSON text a caller can json.Unmarshal. It never partially parses —
// either it finds one balanced top-level span or it reports failure.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if stripped, ok := stripFence(text); ok {
		text = strings.TrimSpace(stripped)
	}

	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFence removes a leading ```(json)?\n ... \n``` wrapper, if one
// wraps the whole input (allowing for a short prefix/suffix around it).
func stripFence(text string) (string, bool) {
	fenceStart := strings.Index(text, "```")
	if fenceStart == -1 {
		return text, false
	}
	rest := text[fenceStart+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		// Skip an optional language tag on the fence's opening line (e.g. "json").
		rest = rest[nl+1:]
	}
	fenceEnd := strings.Index(rest, "```")
	if fenceEnd == -1 {
		return text, false
	}
	return rest[:fenceEnd], true
}
