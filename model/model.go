// Package model holds the vocabulary shared by every pipeline stage:
// machine sides, state kinds, sentinel names and evidence records.
package model

import (
	"strings"
)

// Side identifies which finite-state machine a state or transition belongs to.
type Side string

const (
	SideUE          Side = "UE"
	SideNetwork     Side = "NETWORK"
	SideUnspecified Side = "UNSPECIFIED"
)

// Sides lists every side in build order.
var Sides = []Side{SideUE, SideNetwork, SideUnspecified}

// ParseSide maps free text onto a Side. The empty string is UNSPECIFIED.
// ok is false for text that names no known side.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNSPECIFIED", "BOTH", "ANY":
		return SideUnspecified, true
	case "UE", "UE-SIDE", "UE SIDE", "MS":
		return SideUE, true
	case "NETWORK", "NW", "NETWORK-SIDE", "NETWORK SIDE", "AMF", "SMF", "CN":
		return SideNetwork, true
	}
	return SideUnspecified, false
}

// Opposite returns the other concrete side, or UNSPECIFIED.
func (s Side) Opposite() Side {
	switch s {
	case SideUE:
		return SideNetwork
	case SideNetwork:
		return SideUE
	}
	return SideUnspecified
}

// Kind is the advisory role of a state within its machine.
type Kind string

const (
	KindInitial      Kind = "INITIAL"
	KindIntermediate Kind = "INTERMEDIATE"
	KindFinal        Kind = "FINAL"
	KindUnspecified  Kind = "UNSPECIFIED"
)

// ParseKind maps extractor output ("initial", "Final state", ...) onto a Kind.
func ParseKind(s string) Kind {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(u, "INITIAL"), u == "START":
		return KindInitial
	case strings.HasPrefix(u, "INTERMEDIATE"), strings.HasPrefix(u, "TRANSIENT"):
		return KindIntermediate
	case strings.HasPrefix(u, "FINAL"), u == "TERMINAL", u == "END":
		return KindFinal
	}
	return KindUnspecified
}

// Any is the canonical source of a wildcard edge.
const Any = "ANY"

var sentinels = map[string]bool{
	"":        true,
	"ANY":     true,
	"UNKNOWN": true,
	"N/A":     true,
	"NA":      true,
	"NONE":    true,
	"-":       true,
	"*":       true,
}

// IsSentinel reports whether a raw state name is a reserved placeholder
// rather than a real state. Sentinels are never registered as states.
func IsSentinel(name string) bool {
	return sentinels[strings.ToUpper(TrimDots(name))]
}

// TrimDots removes surrounding space and stray leading or trailing dots,
// which would otherwise leave a substate without a parent.
func TrimDots(name string) string {
	return strings.Trim(strings.TrimSpace(name), ". \t")
}

// HasSentinelParent reports whether any dot-qualified ancestor segment of
// name is a sentinel, as in "Unknown.PLMN-SEARCH". Empty segments are
// ignored.
func HasSentinelParent(name string) bool {
	segs := strings.Split(TrimDots(name), ".")
	for _, seg := range segs[:len(segs)-1] {
		if strings.TrimSpace(seg) != "" && IsSentinel(seg) {
			return true
		}
	}
	return false
}

// Evidence is one extraction record supporting a transition or state.
// It is never modified after creation.
type Evidence struct {
	ChunkID     string `json:"chunk_id"`
	Trigger     string `json:"trigger,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Timing      string `json:"timing,omitempty"`
	Step        *int   `json:"step,omitempty"`
	FromElement string `json:"from_element,omitempty"`
	ToElement   string `json:"to_element,omitempty"`
	RawFrom     string `json:"raw_from,omitempty"`
	RawTo       string `json:"raw_to,omitempty"`
}

// ChunkIDs returns the distinct chunk ids of ev in first-seen order.
func ChunkIDs(ev []Evidence) []string {
	seen := make(map[string]bool, len(ev))
	var out []string
	for _, e := range ev {
		if seen[e.ChunkID] {
			continue
		}
		seen[e.ChunkID] = true
		out = append(out, e.ChunkID)
	}
	return out
}
