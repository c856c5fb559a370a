// Package choice extracts the trailing "{A | B | C}" option menu assistants append to replies.
package choice

import (
	"regexp"
	"strings"
)

// trailingGroup matches one brace group at the very end of the text. Braces anywhere
// else are left alone.
var trailingGroup = regexp.MustCompile(`\{([^{}]*)\}\s*$`)

// Menu is the result of decoding an assistant reply.
type Menu struct {
	CleanText string   `json:"cleanText"`
	Options   []string `json:"options"`
}

// HasOptions reports whether the reply carried a menu.
func (m Menu) HasOptions() bool {
	return len(m.Options) > 0
}

// Contains reports whether option is one of the decoded options.
func (m Menu) Contains(option string) bool {
	for _, o := range m.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Decode splits text into the reply body and its options. Without a trailing group the text
// is returned unchanged with no options. Empty segments such as the one in "{}" are kept.
func Decode(text string) Menu {
	loc := trailingGroup.FindStringSubmatchIndex(text)
	if loc == nil {
		return Menu{CleanText: text, Options: []string{}}
	}

	segments := strings.Split(text[loc[2]:loc[3]], "|")
	options := make([]string, 0, len(segments))
	for _, s := range segments {
		options = append(options, strings.TrimSpace(s))
	}

	return Menu{
		CleanText: strings.TrimSpace(text[:loc[0]]),
		Options:   options,
	}
}
