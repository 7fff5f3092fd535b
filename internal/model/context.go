package model

import "github.com/phonectl/phonectl/internal/provider"

// stripOldImages removes image blocks from every message except the last.
func stripOldImages(messages []provider.Message) {
	for i := 0; i < len(messages)-1; i++ {
		if messages[i].HasImage() {
			messages[i] = messages[i].WithoutImages()
		}
	}
}

// TrimContext trims messages when estimated tokens exceed 80% of maxTokens.
// The first message (the task) and the most recent 6 messages are kept;
// the oldest ones in between are removed first.
func TrimContext(messages []provider.Message, maxTokens int) []provider.Message {
	if len(messages) == 0 || maxTokens <= 0 {
		return messages
	}

	threshold := maxTokens * 80 / 100
	if estimateMessagesTokens(messages) <= threshold {
		return messages
	}

	const keepRecent = 6
	if len(messages) <= keepRecent+1 {
		return messages
	}

	first := messages[0]
	rest := messages[1:]
	for len(rest) > keepRecent && estimateMessagesTokens(rest)+estimateMessagesTokens([]provider.Message{first}) > threshold {
		rest = rest[1:]
	}
	// Keep user/assistant alternation: the message after the task must be
	// an assistant turn.
	if len(rest) > 0 && rest[0].Role == provider.RoleUser {
		rest = rest[1:]
	}

	out := make([]provider.Message, 0, len(rest)+1)
	out = append(out, first)
	return append(out, rest...)
}

// estimateMessagesTokens returns a rough estimate (chars / 4). Images
// count as a fixed 1000 tokens.
func estimateMessagesTokens(messages []provider.Message) int {
	total := 0
	images := 0
	for _, msg := range messages {
		for _, c := range msg.Content {
			total += len(c.Text)
			if c.Type == provider.ContentTypeImage {
				images++
			}
		}
	}
	return total/4 + images*1000
}
