// Package discord resolves message locators against the chat platform and
// projects messages into read-only snapshots for scoring.
package discord

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/open-format/rewarder/internal/model"
)

// ErrNotResolvable is the sentinel for any locator that cannot be resolved
// to a snapshot: malformed URL, wrong host, wrong path shape, non-numeric
// ids, or a message the platform no longer has. Callers get this instead
// of a partial snapshot.
var ErrNotResolvable = errors.New("discord: message not resolvable")

const messageURLHost = "discord.com"

// ParseMessageURL validates a message link and extracts its three-part
// locator. The link must be an https discord.com URL of the exact shape
// /channels/{guild}/{channel}/{message} with all three ids numeric.
func ParseMessageURL(raw string) (model.MessageRef, error) {
	if raw == "" {
		return model.MessageRef{}, fmt.Errorf("%w: empty URL", ErrNotResolvable)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("%w: %v", ErrNotResolvable, err)
	}
	if u.Scheme != "https" {
		return model.MessageRef{}, fmt.Errorf("%w: scheme %q", ErrNotResolvable, u.Scheme)
	}
	if u.Hostname() != messageURLHost {
		return model.MessageRef{}, fmt.Errorf("%w: host %q", ErrNotResolvable, u.Hostname())
	}

	segments := splitPath(u.Path)
	if len(segments) != 4 || segments[0] != "channels" {
		return model.MessageRef{}, fmt.Errorf("%w: path %q", ErrNotResolvable, u.Path)
	}

	ref := model.MessageRef{
		GuildID:   segments[1],
		ChannelID: segments[2],
		MessageID: segments[3],
	}
	for _, id := range []string{ref.GuildID, ref.ChannelID, ref.MessageID} {
		if !isNumeric(id) {
			return model.MessageRef{}, fmt.Errorf("%w: non-numeric id %q", ErrNotResolvable, id)
		}
	}
	return ref, nil
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
