package services

import (
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

const maxStreamerIDLen = 64

// StreamerRegistry holds the streamer ids a mission may be played against.
// Ids are compared in canonical form, so "Cipher Queen" and "cipher-queen" match.
type StreamerRegistry struct {
	ids map[string]struct{}
}

func NewStreamerRegistry(ids []string) *StreamerRegistry {
	r := &StreamerRegistry{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if c := CanonicalStreamerID(id); c != "" {
			r.ids[c] = struct{}{}
		}
	}
	return r
}

// CanonicalStreamerID folds compatibility characters and slugs the result.
func CanonicalStreamerID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxStreamerIDLen {
		return ""
	}
	return slug.Make(norm.NFKC.String(raw))
}

// Resolve returns the canonical id when raw names a known streamer.
func (r *StreamerRegistry) Resolve(raw string) (string, bool) {
	c := CanonicalStreamerID(raw)
	if c == "" {
		return "", false
	}
	_, ok := r.ids[c]
	return c, ok
}

func (r *StreamerRegistry) IDs() []string {
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
