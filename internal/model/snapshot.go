// Package model defines the core domain types shared across packages:
// message snapshots, score results, processed-reward records, and the
// HTTP API envelope.
package model

import (
	"strings"
	"time"
)

// MessageRef is the stable three-part locator of a chat message.
// All three ids are platform snowflakes (numeric strings).
type MessageRef struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// MessageSnapshot is a read-only projection of an external chat message,
// built once per evaluation. The engine never mutates the source message;
// optional attributes (topic, thread, member context) are zero-valued when
// the platform did not supply them and the corresponding scoring signals
// degrade to zero contribution.
type MessageSnapshot struct {
	Ref     MessageRef
	Content string

	AuthorID        string
	AuthorCreatedAt time.Time

	ReactionCount    int
	ThreadReplyCount int

	// ChannelTopic is empty when the channel has no topic set.
	ChannelTopic string

	// HasMember is true when the author's guild-member context was resolved.
	// RoleCount is meaningful only when HasMember is true.
	HasMember bool
	RoleCount int
}

// DistinctTokens returns the number of case-insensitive, whitespace-delimited
// distinct tokens in the message content.
func (s MessageSnapshot) DistinctTokens() int {
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s.Content)) {
		seen[tok] = struct{}{}
	}
	return len(seen)
}
