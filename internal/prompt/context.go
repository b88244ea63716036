// Package prompt derives generator input from a history snapshot.
// Everything here is a pure function of its arguments; no state.
package prompt

import (
	"strings"

	"relaybot/internal/domain"
)

const (
	// DefaultWindowSize is the number of trailing messages handed to
	// the generator as dialogue context.
	DefaultWindowSize = 10
	// DefaultTopicWindow and DefaultMaxTopics bound topic extraction.
	DefaultTopicWindow = 5
	DefaultMaxTopics   = 5

	minTopicLength = 4
)

// stopWords are common English function words excluded from topic
// extraction. Only words longer than three characters matter here;
// shorter ones never pass the length filter.
var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "have": {}, "will": {},
	"your": {}, "from": {}, "they": {}, "been": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "their": {},
	"would": {}, "there": {}, "could": {}, "should": {}, "about": {},
	"just": {}, "like": {}, "some": {}, "them": {}, "then": {},
	"than": {}, "also": {}, "into": {}, "only": {}, "over": {},
	"very": {}, "more": {}, "most": {}, "such": {}, "here": {},
	"does": {}, "doing": {}, "because": {}, "while": {}, "after": {},
	"before": {}, "being": {}, "other": {}, "these": {}, "those": {},
}

// BuildDialogueTurns maps the trailing windowSize messages to
// role-tagged turns for the generator. Messages sent by botID become
// assistant turns, everything else user turns. Blank bodies are
// dropped after trimming; order is preserved, oldest first.
func BuildDialogueTurns(messages []domain.Message, botID string, windowSize int) []domain.DialogueTurn {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if len(messages) > windowSize {
		messages = messages[len(messages)-windowSize:]
	}

	turns := make([]domain.DialogueTurn, 0, len(messages))
	for _, m := range messages {
		body := strings.TrimSpace(m.Body)
		if body == "" {
			continue
		}
		role := domain.RoleUser
		if m.From == botID {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.DialogueTurn{Role: role, Text: body})
	}
	return turns
}

// ExtractTopics pulls salient tokens from the trailing windowSize
// messages: lowercase, whitespace-split, longer than three characters,
// and not a stop word. Tokens are collected scanning messages in
// chronological order and left to right within each message, stopping
// at maxTopics. Repeats are not deduplicated.
func ExtractTopics(messages []domain.Message, windowSize, maxTopics int) []string {
	if windowSize <= 0 {
		windowSize = DefaultTopicWindow
	}
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}
	if len(messages) > windowSize {
		messages = messages[len(messages)-windowSize:]
	}

	var topics []string
	for _, m := range messages {
		for _, tok := range strings.Fields(strings.ToLower(m.Body)) {
			if len(tok) < minTopicLength {
				continue
			}
			if _, stop := stopWords[tok]; stop {
				continue
			}
			topics = append(topics, tok)
			if len(topics) >= maxTopics {
				return topics
			}
		}
	}
	return topics
}
