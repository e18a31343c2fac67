// Package topic implements MQTT-style topic filters.
package topic

import (
	"fmt"
	"sort"
	"strings"
)

// Matches reports whether topic matches the subscription filter sub.
// "+" matches exactly one level, a trailing "#" matches the parent level
// and everything below it. Topics starting with "$" are not matched by a
// leading wildcard.
func Matches(sub, topic string) bool {
	if sub == topic {
		return true
	}
	if sub == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (sub[0] == '+' || sub[0] == '#') {
		return false
	}

	sl := strings.Split(sub, "/")
	tl := strings.Split(topic, "/")

	for i, s := range sl {
		if s == "#" {
			return i == len(sl)-1
		}
		if i >= len(tl) {
			return false
		}
		if s != "+" && s != tl[i] {
			return false
		}
	}
	return len(sl) == len(tl)
}

// Valid reports whether sub is a well-formed filter.
func Valid(sub string) bool {
	if sub == "" {
		return false
	}
	levels := strings.Split(sub, "/")
	for i, l := range levels {
		if strings.Contains(l, "#") && (l != "#" || i != len(levels)-1) {
			return false
		}
		if strings.Contains(l, "+") && l != "+" {
			return false
		}
	}
	return true
}

// specificityKey orders filters by level count, with wildcards sorting
// below literal characters so that reverse order puts the most specific
// filter first.
func specificityKey(sub string) string {
	levels := strings.Count(sub, "/") + 1
	mod := strings.NewReplacer("#", "\x01", "+", "\x02").Replace(sub)
	return fmt.Sprintf("%03d%s", levels, mod)
}

// SortBySpecificity returns the filters ordered most specific first.
func SortBySpecificity(subs []string) []string {
	out := append([]string(nil), subs...)
	sort.SliceStable(out, func(i, j int) bool {
		return specificityKey(out[i]) > specificityKey(out[j])
	})
	return out
}

// MostSpecific returns the most specific filter of subs matching topic.
func MostSpecific(subs []string, topic string) (string, bool) {
	for _, s := range SortBySpecificity(subs) {
		if Matches(s, topic) {
			return s, true
		}
	}
	return "", false
}
