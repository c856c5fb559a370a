package formlog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyLink     = errors.New("logging link is empty")
	ErrEditLink      = errors.New("this is an edit link; use the pre-filled response link instead")
	ErrInvalidLink   = errors.New("logging link is not a valid url")
	ErrMissingFormID = errors.New("could not find the form id in the link")
	ErrTooFewFields  = errors.New("link must pre-fill at least the user message and bot response fields")
)

const entryPrefix = "entry."

// Link is a parsed pre-filled form link.
type Link struct {
	FormID string
	// Fields holds the entry.* keys in query order: user message, bot response, session id.
	Fields []string
}

// HasSessionField reports whether the form has a third field for the session identity.
func (l Link) HasSessionField() bool {
	return len(l.Fields) >= 3
}

// ParseLink extracts the form id and the entry fields from a pre-filled response link.
func ParseLink(raw string) (Link, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return Link{}, ErrEmptyLink
	}
	if strings.Contains(link, "/edit") {
		return Link{}, ErrEditLink
	}

	u, err := url.Parse(link)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	formID := segmentAfter(strings.Split(u.Path, "/"), "e")
	if formID == "" {
		return Link{}, ErrMissingFormID
	}

	fields := entryKeys(u.RawQuery)
	if len(fields) < 2 {
		return Link{FormID: formID, Fields: fields}, ErrTooFewFields
	}

	return Link{FormID: formID, Fields: fields}, nil
}

func segmentAfter(segments []string, marker string) string {
	for i, s := range segments {
		if s == marker && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

// entryKeys walks the raw query so the order of appearance survives; url.Values would lose it.
func entryKeys(rawQuery string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, _, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, entryPrefix) && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}
