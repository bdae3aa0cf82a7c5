// Package normalize maps free-text state, element and message names onto a
// canonical vocabulary. A Normalizer owns its tables; build one per run.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/record"
)

// ErrFrozen is returned when registering into a frozen Normalizer.
var ErrFrozen = errors.New("normalize: table is frozen")

// maxSynonymDepth bounds synonym chains.
const maxSynonymDepth = 4

// State is a canonical state entry.
type State struct {
	Name         string           `json:"name"`
	Key          string           `json:"key"`
	Side         model.Side       `json:"side"`
	Parent       string           `json:"parent,omitempty"`
	Kind         model.Kind       `json:"kind"`
	Declared     bool             `json:"declared"`
	Descriptions []string         `json:"descriptions,omitempty"`
	Aliases      []string         `json:"aliases,omitempty"`
	Evidence     []model.Evidence `json:"evidence,omitempty"`
}

// Element is a canonical network element entry.
type Element struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
	Descriptions []string `json:"descriptions,omitempty"`
	ChunkIDs     []string `json:"chunk_ids,omitempty"`
}

// CrossSideConflict flags a state name that is only meaningful on the other
// side's machine. The name is kept as a distinct entity on its own side.
type CrossSideConflict struct {
	Name      string     `json:"name"`
	Side      model.Side `json:"side"`
	OtherSide model.Side `json:"other_side"`
	Canonical string     `json:"canonical,omitempty"`
	ChunkID   string     `json:"chunk_id"`
	Reason    string     `json:"reason"`
}

func (c CrossSideConflict) Error() string {
	return fmt.Sprintf("normalize: cross-side conflict for %q on %s side (chunk %s): %s", c.Name, c.Side, c.ChunkID, c.Reason)
}

// Transition is a raw transition with canonical names. From is model.Any
// for wildcard edges.
type Transition struct {
	Side        model.Side
	From        string
	To          string
	Message     string
	Wildcard    bool
	FromElement string
	ToElement   string
	Evidence    model.Evidence
}

// Relationship is an element relationship with canonical element names.
type Relationship struct {
	From    string
	To      string
	Text    string
	ChunkID string
}

// Result is the output of a normalization pass.
type Result struct {
	Table             *Table
	Transitions       []Transition
	Relationships     []Relationship
	OrphanAnnotations int
	Dropped           int // transitions with no usable message or target
}

type sideTable struct {
	states map[string]*State
	order  []string
	alias  map[string]string
	loose  map[string]string
}

func newSideTable() *sideTable {
	return &sideTable{
		states: make(map[string]*State),
		alias:  make(map[string]string),
		loose:  make(map[string]string),
	}
}

// Option configures a Normalizer.
type Option func(*options)

type options struct {
	defaults bool
	fuzzy    bool
	synonyms []Synonym
	vocab    map[model.Side][]string
}

// WithSynonyms adds synonyms after the defaults.
func WithSynonyms(syn ...Synonym) Option {
	return func(o *options) { o.synonyms = append(o.synonyms, syn...) }
}

// WithVocabulary adds known state names for side.
func WithVocabulary(side model.Side, names ...string) Option {
	return func(o *options) { o.vocab[side] = append(o.vocab[side], names...) }
}

// WithFuzzy toggles loose-key lookups. Enabled by default.
func WithFuzzy(enabled bool) Option {
	return func(o *options) { o.fuzzy = enabled }
}

// WithoutDefaults drops DefaultSynonyms and DefaultVocabulary.
func WithoutDefaults() Option {
	return func(o *options) { o.defaults = false }
}

// Normalizer accumulates the canonical tables of one ingestion run. It is
// not safe for concurrent use; normalization is sequential so that the
// first-seen form of every name is deterministic.
type Normalizer struct {
	sides        map[model.Side]*sideTable
	elements     map[string]*Element
	elementOrder []string
	elementAlias map[string]string

	synonyms map[model.Side]map[string]string
	vocab    map[model.Side]map[string]bool

	conflicts    []CrossSideConflict
	conflictSeen map[string]bool

	fuzzy  bool
	frozen *Table
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	o := options{defaults: true, fuzzy: true, vocab: make(map[model.Side][]string)}
	for _, fn := range opts {
		fn(&o)
	}

	n := &Normalizer{
		sides:        make(map[model.Side]*sideTable),
		elements:     make(map[string]*Element),
		elementAlias: make(map[string]string),
		synonyms:     make(map[model.Side]map[string]string),
		vocab:        make(map[model.Side]map[string]bool),
		conflictSeen: make(map[string]bool),
		fuzzy:        o.fuzzy,
	}
	for _, side := range model.Sides {
		n.sides[side] = newSideTable()
		n.synonyms[side] = make(map[string]string)
		n.vocab[side] = make(map[string]bool)
	}

	synonyms := o.synonyms
	if o.defaults {
		synonyms = append(append([]Synonym(nil), DefaultSynonyms...), synonyms...)
		for side, names := range DefaultVocabulary {
			for _, name := range names {
				n.vocab[side][LooseKey(name)] = true
			}
		}
	}
	for raw, names := range o.vocab {
		side, ok := model.ParseSide(string(raw))
		if !ok {
			slog.Warn("normalize: vocabulary for unknown side ignored", "side", raw)
			continue
		}
		for _, name := range names {
			n.vocab[side][LooseKey(name)] = true
		}
	}
	for _, s := range synonyms {
		side, ok := model.ParseSide(string(s.Side))
		if !ok {
			slog.Warn("normalize: synonym for unknown side ignored", "side", s.Side, "from", s.From)
			continue
		}
		n.synonyms[side][LooseKey(s.From)] = s.To
	}
	return n
}

// Normalize runs one sequential pass over b and freezes the tables.
// Declarations are processed first so that they supply display names and
// kinds, then transitions, relationships and annotations in batch order.
func (n *Normalizer) Normalize(b *record.Batch) (*Result, error) {
	if n.frozen != nil {
		return nil, ErrFrozen
	}

	for _, rs := range b.States {
		n.declare(rs)
	}
	for _, re := range b.Elements {
		n.describeElement(re)
	}

	res := &Result{Transitions: make([]Transition, 0, len(b.Transitions))}
	for _, rt := range b.Transitions {
		msg := MessageName(rt.Message)
		if msg == "" || model.IsSentinel(rt.To) {
			res.Dropped++
			slog.Warn("normalize: transition without message or target dropped",
				"chunk", rt.ChunkID, "message", rt.Message, "to", rt.To)
			continue
		}
		tr := Transition{
			Side:    rt.Side,
			To:      n.resolveState(rt.Side, rt.To, rt.ChunkID, 0).Name,
			Message: msg,
		}
		if model.IsSentinel(rt.From) {
			tr.From, tr.Wildcard = model.Any, true
		} else {
			tr.From = n.resolveState(rt.Side, rt.From, rt.ChunkID, 0).Name
		}
		if rt.FromElement != "" {
			tr.FromElement = n.resolveElement(rt.FromElement, rt.ChunkID).Name
		}
		if rt.ToElement != "" {
			tr.ToElement = n.resolveElement(rt.ToElement, rt.ChunkID).Name
		}
		ev := rt.Evidence()
		ev.FromElement, ev.ToElement = tr.FromElement, tr.ToElement
		tr.Evidence = ev
		res.Transitions = append(res.Transitions, tr)
	}

	for _, rr := range b.Relationships {
		res.Relationships = append(res.Relationships, Relationship{
			From:    n.resolveElement(rr.Element1, rr.ChunkID).Name,
			To:      n.resolveElement(rr.Element2, rr.ChunkID).Name,
			Text:    strings.Join(strings.Fields(rr.Text), " "),
			ChunkID: rr.ChunkID,
		})
	}

	for _, ra := range b.Annotations {
		if !n.annotate(ra) {
			res.OrphanAnnotations++
			slog.Debug("normalize: annotation for unknown state", "state", ra.State, "chunk", ra.ChunkID)
		}
	}

	res.Table = n.Freeze()
	slog.Info("normalize: tables frozen",
		"ue_states", len(n.sides[model.SideUE].order),
		"network_states", len(n.sides[model.SideNetwork].order),
		"unspecified_states", len(n.sides[model.SideUnspecified].order),
		"elements", len(n.elementOrder),
		"conflicts", len(n.conflicts),
		"orphan_annotations", res.OrphanAnnotations,
		"dropped", res.Dropped)
	return res, nil
}

// State returns the canonical name of raw on side, registering it when
// new. Sentinels map to model.Any and are never registered.
func (n *Normalizer) State(side model.Side, raw, chunkID string) (string, error) {
	if n.frozen != nil {
		return "", ErrFrozen
	}
	if model.IsSentinel(raw) {
		return model.Any, nil
	}
	return n.resolveState(side, raw, chunkID, 0).Name, nil
}

// Element returns the canonical name of a network element, registering it
// when new.
func (n *Normalizer) Element(raw, chunkID string) (string, error) {
	if n.frozen != nil {
		return "", ErrFrozen
	}
	return n.resolveElement(raw, chunkID).Name, nil
}

// Conflicts returns the cross-side conflicts found so far.
func (n *Normalizer) Conflicts() []CrossSideConflict {
	return append([]CrossSideConflict(nil), n.conflicts...)
}

func (n *Normalizer) declare(rs record.RawState) {
	s := n.resolveState(rs.Side, rs.Name, rs.ChunkID, 0)
	s.Declared = true
	if s.Kind == model.KindUnspecified && rs.Kind != "" {
		s.Kind = rs.Kind
	}
	if d := strings.TrimSpace(rs.Description); d != "" && !contains(s.Descriptions, d) {
		s.Descriptions = append(s.Descriptions, d)
	}
	s.Evidence = append(s.Evidence, model.Evidence{ChunkID: rs.ChunkID, RawTo: rs.Name})
}

func (n *Normalizer) resolveState(side model.Side, raw, chunkID string, depth int) *State {
	if side == "" {
		side = model.SideUnspecified
	}
	t := n.sides[side]
	display := displayForm(raw)
	if model.IsSentinel(display) {
		// never registered; the caller gets an unattached placeholder
		return &State{Name: model.Any, Key: model.Any, Side: side, Kind: model.KindUnspecified}
	}
	key := Key(display)

	if ck, ok := t.alias[key]; ok {
		s := t.states[ck]
		s.addAlias(display)
		return s
	}
	lk := LooseKey(display)
	if n.fuzzy && lk != "" {
		if ck, ok := t.loose[lk]; ok {
			t.alias[key] = ck
			s := t.states[ck]
			s.addAlias(display)
			return s
		}
	}

	if i := strings.LastIndex(display, "."); i > 0 && i < len(display)-1 {
		if model.HasSentinelParent(display) {
			segs := strings.Split(display, ".")
			kept := make([]string, 0, len(segs))
			for j, seg := range segs {
				if j == len(segs)-1 || !model.IsSentinel(seg) {
					kept = append(kept, seg)
				}
			}
			slog.Warn("normalize: sentinel parent dropped", "side", side, "state", display, "chunk", chunkID)
			return n.resolveState(side, strings.Join(kept, "."), chunkID, depth)
		}
		parent := n.resolveState(side, display[:i], chunkID, depth)
		full := parent.Name + "." + strings.TrimSpace(display[i+1:])
		fk := Key(full)
		if ck, ok := t.alias[fk]; ok {
			t.alias[key] = ck
			s := t.states[ck]
			s.addAlias(display)
			return s
		}
		s := t.register(side, full)
		s.Parent = parent.Name
		t.alias[key] = s.Key
		n.checkCrossSide(side, full, chunkID)
		return s
	}

	if depth < maxSynonymDepth {
		if target, ok := n.synonymFor(side, lk); ok {
			s := n.resolveState(side, target, chunkID, depth+1)
			t.alias[key] = s.Key
			s.addAlias(display)
			return s
		}
	}

	n.checkCrossSide(side, display, chunkID)
	return t.register(side, display)
}

func (n *Normalizer) synonymFor(side model.Side, lk string) (string, bool) {
	if lk == "" {
		return "", false
	}
	if to, ok := n.synonyms[side][lk]; ok && LooseKey(to) != lk {
		return to, true
	}
	if side != model.SideUnspecified {
		if to, ok := n.synonyms[model.SideUnspecified][lk]; ok && LooseKey(to) != lk {
			return to, true
		}
	}
	return "", false
}

func (n *Normalizer) checkCrossSide(side model.Side, name, chunkID string) {
	other := side.Opposite()
	if other == model.SideUnspecified {
		return
	}
	lk := LooseKey(name)
	if lk == "" || n.vocab[side][lk] {
		return
	}
	c := CrossSideConflict{Name: name, Side: side, OtherSide: other, ChunkID: chunkID}
	switch {
	case n.synonyms[other][lk] != "":
		c.Canonical = n.synonyms[other][lk]
		c.Reason = fmt.Sprintf("synonym of %s only on the %s side", c.Canonical, other)
	case n.vocab[other][lk]:
		c.Reason = fmt.Sprintf("state is only defined on the %s side", other)
	default:
		return
	}
	seen := string(side) + "|" + lk
	if n.conflictSeen[seen] {
		return
	}
	n.conflictSeen[seen] = true
	n.conflicts = append(n.conflicts, c)
	slog.Warn("normalize: cross-side merge conflict, keeping names distinct",
		"name", name, "side", side, "other_side", other, "chunk", chunkID, "reason", c.Reason)
}

func (t *sideTable) register(side model.Side, display string) *State {
	key := Key(display)
	if s, ok := t.states[key]; ok {
		return s
	}
	s := &State{Name: display, Key: key, Side: side, Kind: model.KindUnspecified}
	t.states[key] = s
	t.order = append(t.order, key)
	t.alias[key] = key
	if lk := LooseKey(display); lk != "" {
		if _, ok := t.loose[lk]; !ok {
			t.loose[lk] = key
		}
	}
	return s
}

func (t *sideTable) lookup(name string, fuzzy bool) (*State, bool) {
	if ck, ok := t.alias[Key(name)]; ok {
		return t.states[ck], true
	}
	if fuzzy {
		if lk := LooseKey(name); lk != "" {
			if ck, ok := t.loose[lk]; ok {
				return t.states[ck], true
			}
		}
	}
	return nil, false
}

func (n *Normalizer) annotate(ra record.RawAnnotation) bool {
	found := false
	for _, side := range model.Sides {
		if s, ok := n.sides[side].lookup(ra.State, n.fuzzy); ok {
			s.Evidence = append(s.Evidence, ra.Evidence())
			found = true
		}
	}
	return found
}

func (s *State) addAlias(display string) {
	if display == s.Name || contains(s.Aliases, display) {
		return
	}
	s.Aliases = append(s.Aliases, display)
}

// displayForm folds raw to NFKC with unified dashes, collapsed whitespace
// and no stray leading or trailing dots.
func displayForm(raw string) string {
	s := dashes.Replace(norm.NFKC.String(raw))
	return model.TrimDots(strings.Join(strings.Fields(s), " "))
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
