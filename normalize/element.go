package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/brunobiangulo/nasgraph/record"
)

var parenthesised = regexp.MustCompile(`^(.*?)\s*\(([^()]+)\)\s*$`)

// splitAbbreviation separates "Access and Mobility Management Function (AMF)"
// into its abbreviation and long form. It also accepts "AMF (Access and
// Mobility Management Function)". abbr is empty when name has neither shape.
func splitAbbreviation(name string) (abbr, long string) {
	m := parenthesised.FindStringSubmatch(name)
	if m == nil {
		return "", ""
	}
	outer, inner := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	switch {
	case isAbbreviation(inner) && outer != "":
		return inner, outer
	case isAbbreviation(outer) && inner != "":
		return outer, inner
	}
	return "", ""
}

func isAbbreviation(s string) bool {
	if s == "" || len(s) > 12 || strings.ContainsAny(s, " \t") {
		return false
	}
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return upper >= 2 || (upper == 1 && len(s) <= 3)
}

func (n *Normalizer) resolveElement(raw, chunkID string) *Element {
	display := displayForm(raw)
	key := Key(display)

	e, ok := n.lookupElement(key)
	if !ok {
		name := display
		abbr, long := splitAbbreviation(display)
		if abbr != "" {
			name = abbr
		} else if a, known := KnownElements[key]; known {
			name, long = a, display
		}

		ck := Key(name)
		e, ok = n.elements[ck]
		if !ok {
			e = &Element{Name: name}
			n.elements[ck] = e
			n.elementOrder = append(n.elementOrder, ck)
		}
		n.elementAlias[ck] = ck
		n.elementAlias[key] = ck
		if long != "" {
			n.elementAlias[Key(long)] = ck
		}
	}

	if display != e.Name && !contains(e.Aliases, display) {
		e.Aliases = append(e.Aliases, display)
	}
	if chunkID != "" && !contains(e.ChunkIDs, chunkID) {
		e.ChunkIDs = append(e.ChunkIDs, chunkID)
	}
	return e
}

func (n *Normalizer) lookupElement(key string) (*Element, bool) {
	if ck, ok := n.elementAlias[key]; ok {
		return n.elements[ck], true
	}
	if abbr, ok := KnownElements[key]; ok {
		if e, ok := n.elements[Key(abbr)]; ok {
			n.elementAlias[key] = Key(abbr)
			return e, true
		}
	}
	return nil, false
}

func (n *Normalizer) describeElement(re record.RawElement) {
	e := n.resolveElement(re.Name, re.ChunkID)
	if t := strings.TrimSpace(re.Type); t != "" && e.Type == "" {
		e.Type = t
	}
	if d := strings.TrimSpace(re.Description); d != "" && !contains(e.Descriptions, d) {
		e.Descriptions = append(e.Descriptions, d)
	}
}
