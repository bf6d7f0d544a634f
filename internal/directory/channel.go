package directory

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// ChannelMarker prefixes every channel slug.
const ChannelMarker = "#"

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrSlugTaken       = errors.New("channel slug already in use")
	ErrEmptyName       = errors.New("channel name is required")
)

// Channel is a named conversation visible to every member.
type Channel struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Slugify lower-cases name, joins words with single hyphens and prefixes the
// channel marker. "Planning Sync" becomes "#planning-sync".
func Slugify(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, ChannelMarker)

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyName
	}
	return ChannelMarker + b.String(), nil
}
