package schema

import (
	"regexp"
	"strings"
)

// ExclusionSet holds the configured columns that must never reach output.
//
// Entries are authored informally, so each one is kept in both its raw and
// normalized spelling. Entries containing glob metacharacters (*, ?, [) are
// patterns: '*' matches any run of characters, '/' included, '?' matches one
// character and [...] a character class ([!...] negates). A backslash quotes
// the next character. An ExclusionSet is immutable after NewExclusionSet
// returns and is safe to share between goroutines.
type ExclusionSet struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewExclusionSet builds an ExclusionSet from configured entries.
func NewExclusionSet(entries []string) *ExclusionSet {
	ex := &ExclusionSet{exact: make(map[string]struct{})}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if isPattern(entry) {
			ex.patterns = append(ex.patterns, compileGlob(entry), compileGlob(Normalize(entry)))
			continue
		}

		ex.exact[entry] = struct{}{}
		ex.exact[BaseName(entry)] = struct{}{}
		ex.exact[Normalize(entry)] = struct{}{}
	}

	return ex
}

// Len returns the number of distinct spellings held by the set.
func (ex *ExclusionSet) Len() int {
	if ex == nil {
		return 0
	}
	return len(ex.exact) + len(ex.patterns)
}

// Excludes reports whether a raw header is excluded. The header matches if its
// raw form, its base name, its normalized form, or its normalized base name
// matches any entry.
func (ex *ExclusionSet) Excludes(raw string) bool {
	if ex == nil {
		return false
	}

	base := BaseName(raw)
	forms := [...]string{
		raw,
		base,
		normalizeBody(raw),
		Normalize(base),
	}

	for _, form := range forms {
		if _, ok := ex.exact[form]; ok {
			return true
		}
		for _, pattern := range ex.patterns {
			if pattern.MatchString(form) {
				return true
			}
		}
	}

	return false
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// compileGlob translates a glob into an anchored regexp. A pattern that does
// not form a valid regexp, such as one with a reversed range, matches only
// itself.
func compileGlob(glob string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '\\':
			if i+1 < len(runes) {
				i++
			}
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		case '[':
			end := classEnd(runes, i)
			if end < 0 {
				b.WriteString(regexp.QuoteMeta("["))
				continue
			}
			b.WriteByte('[')
			body := runes[i+1 : end]
			if body[0] == '!' || body[0] == '^' {
				b.WriteByte('^')
				body = body[1:]
			}
			for _, c := range body {
				if c == '\\' || c == '[' || c == ']' {
					b.WriteByte('\\')
				}
				b.WriteRune(c)
			}
			b.WriteByte(']')
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return regexp.MustCompile(`^` + regexp.QuoteMeta(glob) + `$`)
	}
	return re
}

// classEnd returns the index of the ']' closing the class opened at start, or
// -1. A ']' right after the opening bracket or its negation is a member.
func classEnd(runes []rune, start int) int {
	i := start + 1
	if i < len(runes) && (runes[i] == '!' || runes[i] == '^') {
		i++
	}
	if i < len(runes) && runes[i] == ']' {
		i++
	}
	for ; i < len(runes); i++ {
		if runes[i] == ']' {
			return i
		}
	}
	return -1
}
