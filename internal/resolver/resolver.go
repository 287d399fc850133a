// Package resolver turns message templates containing symbolic role and
// channel references into platform mention syntax.
//
// Substitution runs as a fixed, ordered list of passes. Each pass scans the
// output of the previous one, so the order is part of the contract:
//
//  1. {{role:Name}}              roles
//  2. {{Name}}                   roles only (bare braces never mean a channel)
//  3. @Name                      roles, word-bounded
//  4. {{#name}}, {{channel:name}} channels
//  5. #name                      channels, word-bounded, only when registered
//
// Tokens whose name is unknown, or known with a blank ID, are left untouched.
// Name charsets exclude '<', '&' and '#' after a '<', so text produced by an
// earlier pass is never matched again.
package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"allyboard/internal/models"

	"golang.org/x/text/cases"
)

// NormalizeName trims, collapses inner whitespace and case-folds a name.
// Registry keys and token names go through the same function.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return cases.Fold().String(strings.Join(fields, " "))
}

// RoleMention formats a role ID in platform syntax.
func RoleMention(id string) string {
	return "<@&" + id + ">"
}

// ChannelMention formats a channel ID in platform syntax.
func ChannelMention(id string) string {
	return "<#" + id + ">"
}

// Token is one symbolic reference found while resolving a template.
type Token struct {
	Pass     string             `json:"pass"`
	Kind     models.MentionKind `json:"kind"`
	Text     string             `json:"text"`
	Name     string             `json:"name"`
	Resolved bool               `json:"resolved"`
}

// Pass is a single substitution step.
type Pass struct {
	Name    string
	Kind    models.MentionKind
	pattern *regexp.Regexp
	// bounded passes capture the preceding boundary in group 1 and the name
	// in group 2, and require the following rune to be a boundary too.
	bounded bool
}

var passes = []Pass{
	{
		Name:    "role-tag",
		Kind:    models.MentionKindRole,
		pattern: regexp.MustCompile(`\{\{\s*(?i:role)\s*:\s*([A-Za-z0-9_\- ]+?)\s*\}\}`),
	},
	{
		Name:    "bare-braces",
		Kind:    models.MentionKindRole,
		pattern: regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\- ]+?)\s*\}\}`),
	},
	{
		Name:    "at-mention",
		Kind:    models.MentionKindRole,
		pattern: regexp.MustCompile(`(^|[\s(])@([A-Za-z0-9_\-]+)`),
		bounded: true,
	},
	{
		Name:    "channel-tag",
		Kind:    models.MentionKindChannel,
		pattern: regexp.MustCompile(`\{\{\s*(?:#|(?i:channel)\s*:)\s*([A-Za-z0-9_\- ]+?)\s*\}\}`),
	},
	{
		Name:    "hash-mention",
		Kind:    models.MentionKindChannel,
		pattern: regexp.MustCompile(`(^|[\s(])#([A-Za-z0-9_\-]+)`),
		bounded: true,
	},
}

// Passes returns the substitution passes in the order Resolve applies them.
func Passes() []Pass {
	out := make([]Pass, len(passes))
	copy(out, passes)
	return out
}

// Resolve substitutes every resolvable token in template. It never fails:
// unresolved tokens pass through unchanged.
func Resolve(template string, roles, channels map[string]string) string {
	return run(template, roles, channels, nil)
}

// Inspect resolves template and reports every token the passes matched,
// in pass order.
func Inspect(template string, roles, channels map[string]string) (string, []Token) {
	var tokens []Token
	out := run(template, roles, channels, func(tok Token) {
		tokens = append(tokens, tok)
	})
	return out, tokens
}

// Unresolved returns the text of each token Inspect could not map.
func Unresolved(tokens []Token) []string {
	var out []string
	for _, tok := range tokens {
		if !tok.Resolved {
			out = append(out, tok.Text)
		}
	}
	return out
}

func run(template string, roles, channels map[string]string, visit func(Token)) string {
	roleLut := normalizeKeys(roles)
	channelLut := normalizeKeys(channels)

	out := template
	for _, p := range passes {
		lut := roleLut
		if p.Kind == models.MentionKindChannel {
			lut = channelLut
		}
		out = p.apply(out, lut, visit)
	}
	return out
}

// Apply runs this pass alone against text. lut keys are normalized first.
func (p Pass) Apply(text string, lut map[string]string) string {
	return p.apply(text, normalizeKeys(lut), nil)
}

func (p Pass) apply(text string, lut map[string]string, visit func(Token)) string {
	matches := p.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		if p.bounded {
			// group 1 is the boundary prefix, kept as-is
			start = m[3]
			nameStart, nameEnd = m[4], m[5]
			if !followedByBoundary(text, end) {
				continue
			}
		}

		name := text[nameStart:nameEnd]
		id, ok := lookup(lut, name)
		if visit != nil {
			visit(Token{Pass: p.Name, Kind: p.Kind, Text: text[start:end], Name: NormalizeName(name), Resolved: ok})
		}
		if !ok {
			continue
		}

		b.WriteString(text[last:start])
		if p.Kind == models.MentionKindChannel {
			b.WriteString(ChannelMention(id))
		} else {
			b.WriteString(RoleMention(id))
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func followedByBoundary(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func lookup(lut map[string]string, name string) (string, bool) {
	id, ok := lut[NormalizeName(name)]
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// normalizeKeys folds lut keys. When two raw keys fold to the same name, the
// already-normalized key wins, then the lexically smaller one, so the result
// does not depend on map iteration order.
func normalizeKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	from := make(map[string]string, len(in))
	for k, v := range in {
		nk := NormalizeName(k)
		if prev, seen := from[nk]; seen {
			prevExact, curExact := prev == nk, k == nk
			if prevExact && !curExact {
				continue
			}
			if prevExact == curExact && prev < k {
				continue
			}
		}
		out[nk] = v
		from[nk] = k
	}
	return out
}
