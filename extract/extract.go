// Package extract produces chunk records from specification text with
// pattern rules. Normative sentences that move a machine into a named
// state become transition claims; everything else is left to the
// downstream stages.
package extract

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/nasgraph/chunker"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/record"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency bounds the number of chunks processed at once.
func WithConcurrency(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

// WithAllChunks keeps an empty record for chunks that mention no state and
// no message.
func WithAllChunks() Option {
	return func(x *Extractor) { x.keepAll = true }
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct {
	concurrency int
	keepAll     bool
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{concurrency: runtime.NumCPU()}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Extract returns one record per relevant chunk, in chunk order.
func (x *Extractor) Extract(ctx context.Context, chunks []chunker.Chunk) ([]record.ChunkRecord, error) {
	results := make([]*record.ChunkRecord, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rec, ok := x.Chunk(chunks[i]); ok {
				results[i] = &rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]record.ChunkRecord, 0, len(chunks))
	transitions := 0
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
			transitions += len(r.Transitions)
		}
	}
	slog.Info("extract: chunks processed",
		"chunks", len(chunks),
		"records", len(out),
		"transitions", transitions)
	return out, nil
}

// Chunk extracts a single chunk. ok is false when the chunk is irrelevant
// and the extractor does not keep all chunks.
func (x *Extractor) Chunk(ch chunker.Chunk) (record.ChunkRecord, bool) {
	text := strings.Join(strings.Fields(ch.Content), " ")
	if !relevant(text) && !x.keepAll {
		return record.ChunkRecord{}, false
	}

	idx := ch.Index
	rec := record.ChunkRecord{
		ChunkID: ch.ID,
		Source:  ch.Source,
		Section: ch.Clause,
		Metadata: record.Metadata{
			Source:        ch.Source,
			ChunkIndex:    &idx,
			ProcedureName: strings.TrimSpace(strings.TrimPrefix(ch.Heading, ch.Clause)),
			Section:       ch.Clause,
		},
	}

	states := &stateSet{sided: make(map[string]bool)}
	rels := make(map[[3]string]bool)
	normative := make(map[int]bool)
	for _, req := range chunker.DetectRequirements(text) {
		if req.Level == "mandatory" {
			normative[req.Index] = true
		}
	}

	lastMessage := ""
	for i, sent := range chunker.Sentences(text) {
		s := parseSentence(sent)
		for _, name := range s.mentioned {
			states.add(name, s.side)
		}
		message := lastMessage
		if len(s.messages) > 0 {
			message = s.messages[0]
			lastMessage = s.messages[len(s.messages)-1]
		}
		if len(s.targets) == 0 || !(normative[i] || s.descriptive) {
			continue
		}
		if message == "" {
			slog.Debug("extract: transition without message", "chunk", ch.ID, "sentence", sent)
			continue
		}

		from := "Unknown"
		if len(s.sources) > 0 {
			from = s.sources[0]
		}
		fromEl, toEl := endpoints(sent, message)
		for _, to := range s.targets {
			rec.Transitions = append(rec.Transitions, record.TransitionItem{
				FromState:   from,
				ToState:     to,
				Message:     message,
				FromElement: fromEl,
				ToElement:   toEl,
				Trigger:     strings.TrimSpace(triggerPattern.FindString(sent)),
				Condition:   strings.TrimSpace(conditionPattern.FindString(sent)),
				Timing:      timing(sent),
				Side:        string(s.side),
			})
		}
		if fromEl != "" && toEl != "" && fromEl != toEl {
			k := [3]string{fromEl, toEl, message}
			if !rels[k] {
				rels[k] = true
				rec.ElementRelationships = append(rec.ElementRelationships, record.RelationshipItem{
					Element1:     fromEl,
					Element2:     toEl,
					Relationship: "sends " + message,
				})
			}
		}
	}

	rec.States = states.items()
	seen := make(map[string]bool)
	for _, name := range elementPattern.FindAllString(text, -1) {
		if !seen[name] {
			seen[name] = true
			rec.NetworkElements = append(rec.NetworkElements, record.ElementItem{Name: name, Type: "network_function"})
		}
	}
	return rec, true
}

type sentence struct {
	side        model.Side // UNSPECIFIED when no subject was recognised
	messages    []string
	mentioned   []string
	sources     []string
	targets     []string
	descriptive bool // "enters state X" outside a normative sentence
}

func parseSentence(sent string) sentence {
	s := sentence{side: sideOf(sent)}
	for _, m := range messagePattern.FindAllString(sent, -1) {
		if name := messageName(m); name != "" {
			s.messages = append(s.messages, name)
		}
	}
	for _, loc := range statePattern.FindAllStringIndex(sent, -1) {
		name := sent[loc[0]:loc[1]]
		prefix := sent[max(0, loc[0]-48):loc[0]]
		s.mentioned = append(s.mentioned, name)
		switch {
		case targetPrefix.MatchString(prefix):
			s.targets = appendUnique(s.targets, name)
			if strings.Contains(strings.ToLower(prefix), "enters") {
				s.descriptive = true
			}
		case sourcePrefix.MatchString(prefix):
			s.sources = appendUnique(s.sources, name)
		}
	}
	return s
}

func sideOf(sent string) model.Side {
	m := subjectPattern.FindStringSubmatch(sent)
	if m == nil {
		return model.SideUnspecified
	}
	if m[1] == "UE" || m[1] == "MS" {
		return model.SideUE
	}
	return model.SideNetwork
}

// endpoints returns the sending and receiving element of message as
// described by sent. Whichever of "receipt of" and "send" comes first
// decides the direction.
func endpoints(sent, message string) (from, to string) {
	m := subjectPattern.FindStringSubmatch(sent)
	if m == nil {
		return "", ""
	}
	subject := element(m[1], message)
	peer := ""
	if p := peerPattern.FindStringSubmatch(sent); p != nil {
		peer = element(p[2], message)
	}
	if peer == "" || peer == subject {
		if subject == "UE" {
			peer = networkFunction(message)
		} else {
			peer = "UE"
		}
	}

	recv := receivePattern.FindStringIndex(sent)
	send := sendPattern.FindStringIndex(sent)
	switch {
	case recv != nil && (send == nil || recv[0] < send[0]):
		return peer, subject
	case send != nil:
		return subject, peer
	}
	return "", ""
}

func element(name, message string) string {
	switch u := strings.ToUpper(name); u {
	case "MS":
		return "UE"
	case "NETWORK":
		return networkFunction(message)
	default:
		return u
	}
}

// networkFunction is the peer of the UE for message: the SMF for 5GSM
// messages and the AMF otherwise.
func networkFunction(message string) string {
	if strings.HasPrefix(message, "PDU SESSION") || strings.HasPrefix(message, "5GSM") {
		return "SMF"
	}
	return "AMF"
}

func timing(sent string) string {
	if actions := timerAction.FindAllString(sent, -1); len(actions) > 0 {
		return strings.Join(actions, "; ")
	}
	return strings.Join(timerPattern.FindAllString(sent, -1), ", ")
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// stateSet collects state sightings of one chunk. A state seen with a
// side is not repeated as UNSPECIFIED.
type stateSet struct {
	order []record.StateItem
	sided map[string]bool
}

func (s *stateSet) add(name string, side model.Side) {
	for _, it := range s.order {
		if it.Name == name && it.Side == string(side) {
			return
		}
	}
	if side != model.SideUnspecified {
		s.sided[name] = true
	}
	s.order = append(s.order, record.StateItem{Name: name, Side: string(side)})
}

func (s *stateSet) items() []record.StateItem {
	var out []record.StateItem
	for _, it := range s.order {
		if it.Side == string(model.SideUnspecified) && s.sided[it.Name] {
			continue
		}
		out = append(out, it)
	}
	return out
}
