package llm

import "strings"

// DefaultTokenBudget is the character budget applied to a conversation
// before every model call. Character count is a deliberate approximation;
// the producers here are LLM responses, not precise token streams.
const DefaultTokenBudget = 35000

// ManageTokenBudget trims the conversation in place when it exceeds the
// budget. Old proposal messages go first, then the oldest messages, and
// as a last resort the final message is truncated. Returns true when the
// conversation was modified.
func ManageTokenBudget(messages *[]ChatMessage, budget int) bool {
	msgs := *messages
	total := 0
	for _, m := range msgs {
		total += len([]rune(m.Content))
	}
	if total < budget {
		return false
	}

	// Superseded proposals carry the least signal; drop those first.
	if len(msgs) > 1 {
		i := 0
		for total >= budget && i < len(msgs) {
			if msgs[i].Role == RoleAssistant && strings.Contains(msgs[i].Content, "proposal") {
				total -= len([]rune(msgs[i].Content))
				msgs = append(msgs[:i], msgs[i+1:]...)
			} else {
				i++
			}
		}
	}

	for total >= budget && len(msgs) > 1 {
		total -= len([]rune(msgs[0].Content))
		msgs = msgs[1:]
	}

	if total >= budget && len(msgs) > 0 {
		last := &msgs[len(msgs)-1]
		runes := []rune(last.Content)
		if len(runes) > budget {
			last.Content = string(runes[:budget])
		}
	}

	*messages = msgs
	return true
}
