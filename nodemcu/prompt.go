package nodemcu

import "strings"

// PromptMarker is what the Lua interpreter prints when it is ready for input.
// It is never newline-terminated, so it has to be matched on raw chunks.
const PromptMarker = "> "

// IsPromptChunk reports whether a raw receive chunk ends with the prompt.
func IsPromptChunk(chunk string) bool {
	return strings.HasSuffix(chunk, PromptMarker)
}
