package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var dashes = strings.NewReplacer("‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-")

// Key returns the comparison key of a name: NFKC folded, trimmed, inner
// whitespace collapsed to one space and upper-cased.
func Key(s string) string {
	s = norm.NFKC.String(s)
	s = dashes.Replace(s)
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// qualifiers are dropped from loose keys when they appear as whole words.
var qualifiers = map[string]bool{
	"STATE":    true,
	"STATES":   true,
	"SUBSTATE": true,
	"MODE":     true,
	"THE":      true,
}

// LooseKey is Key with quotes removed, qualifier words dropped and word
// separators unified to "-". It is used for fuzzy lookups only.
func LooseKey(s string) string {
	k := Key(s)
	k = strings.NewReplacer(`"`, "", "'", "", "`", "", "“", "", "”", "", "‘", "", "’", "").Replace(k)
	k = strings.ReplaceAll(k, "_", " ")
	k = strings.ReplaceAll(k, "-", " ")

	// dots separate substates; loosen each segment independently
	segs := strings.Split(k, ".")
	for i, seg := range segs {
		var words []string
		for _, w := range strings.Fields(seg) {
			if qualifiers[w] {
				continue
			}
			words = append(words, w)
		}
		segs[i] = strings.Join(words, "-")
	}
	return strings.Join(segs, ".")
}

// MessageName returns the canonical form of a NAS message name.
func MessageName(s string) string {
	k := Key(strings.ReplaceAll(s, "_", " "))
	k = strings.Trim(k, `"' `)
	k = strings.TrimSuffix(k, " MESSAGE")
	return strings.Join(strings.Fields(k), " ")
}
