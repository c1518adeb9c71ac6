package dispatcher

import "strings"

// thinkingOpenTag and thinkingCloseTag bound the reasoning blocks some
// models (DeepSeek-R1 style) inline into their content. CleanThinking
// strips the first such block when cleaning is enabled, mirroring the
// teacher's ThinkingProcessor (relay/adaptor/openai_compatible) but applied
// to a complete non-streaming body rather than incrementally to deltas.
const (
	thinkingOpenTag  = "<think>"
	thinkingCloseTag = "</think>"
)

// CleanThinking removes the first <think>...</think> block from content,
// per §4.10 step 4 ("strip known reasoning-tag blocks if cleaning is
// enabled"), returning the cleaned content and the extracted reasoning text
// (empty if no block was found).
func CleanThinking(content string) (cleaned string, reasoning string, found bool) {
	start := strings.Index(content, thinkingOpenTag)
	if start == -1 {
		return content, "", false
	}
	end := strings.Index(content[start:], thinkingCloseTag)
	if end == -1 {
		return content, "", false
	}
	end += start

	reasoning = content[start+len(thinkingOpenTag) : end]
	cleaned = content[:start] + content[end+len(thinkingCloseTag):]
	return strings.TrimSpace(cleaned), strings.TrimSpace(reasoning), true
}
