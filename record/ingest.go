package record

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/brunobiangulo/nasgraph/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithConcurrency bounds the number of chunks parsed at once.
func WithConcurrency(n int) IngestOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

// Ingestor converts chunk records into a typed Batch. It holds no state
// between calls and is safe for concurrent use.
type Ingestor struct {
	concurrency int
}

// NewIngestor creates an Ingestor.
func NewIngestor(opts ...IngestOption) *Ingestor {
	in := &Ingestor{concurrency: runtime.NumCPU()}
	for _, o := range opts {
		o(in)
	}
	return in
}

type chunkResult struct {
	id    string
	pos   int
	batch Batch
}

// Ingest parses chunks in parallel and merges the results ordered by chunk
// id, ties broken by input position. Malformed items are counted on the
// returned Batch; the only error is context cancellation.
func (in *Ingestor) Ingest(ctx context.Context, chunks []ChunkRecord) (*Batch, error) {
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id := ChunkIDOf(chunks[i], i)
			results[i] = chunkResult{id: id, pos: i, batch: parseChunk(id, &chunks[i])}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("record: ingest: %w", err)
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].id != results[b].id {
			return naturalLess(results[a].id, results[b].id)
		}
		return results[a].pos < results[b].pos
	})

	out := &Batch{Stats: Stats{Chunks: len(chunks)}}
	for _, r := range results {
		out.Elements = append(out.Elements, r.batch.Elements...)
		out.States = append(out.States, r.batch.States...)
		out.Transitions = append(out.Transitions, r.batch.Transitions...)
		out.Relationships = append(out.Relationships, r.batch.Relationships...)
		out.Annotations = append(out.Annotations, r.batch.Annotations...)
		out.Malformed = append(out.Malformed, r.batch.Malformed...)
	}
	out.Stats.Elements = len(out.Elements)
	out.Stats.States = len(out.States)
	out.Stats.Transitions = len(out.Transitions)
	out.Stats.Relationships = len(out.Relationships)
	out.Stats.Annotations = len(out.Annotations)
	out.Stats.Malformed = len(out.Malformed)
	if len(out.Malformed) > 0 {
		out.Stats.MalformedByReason = make(map[string]int)
		for _, m := range out.Malformed {
			out.Stats.MalformedByReason[m.Reason]++
		}
	}

	slog.Info("ingest: chunks parsed",
		"chunks", out.Stats.Chunks,
		"transitions", out.Stats.Transitions,
		"states", out.Stats.States,
		"elements", out.Stats.Elements,
		"malformed", out.Stats.Malformed)
	return out, nil
}

// ChunkIDOf returns the chunk id of c, synthesizing one from its source and
// chunk index when absent. pos is the record's position in its corpus.
func ChunkIDOf(c ChunkRecord, pos int) string {
	if id := strings.TrimSpace(c.ChunkID); id != "" {
		return id
	}
	source := strings.TrimSpace(c.Source)
	if source == "" {
		source = strings.TrimSpace(c.Metadata.Source)
	}
	if source != "" && c.Metadata.ChunkIndex != nil {
		return fmt.Sprintf("%s#%d", source, *c.Metadata.ChunkIndex)
	}
	return fmt.Sprintf("chunk-%04d", pos+1)
}

func parseChunk(id string, c *ChunkRecord) Batch {
	var b Batch
	drop := func(section string, idx int, reason string) {
		m := MalformedRecord{ChunkID: id, Section: section, Index: idx, Reason: reason}
		slog.Debug("ingest: dropping malformed record", "chunk", id, "section", section, "index", idx, "reason", reason)
		b.Malformed = append(b.Malformed, m)
	}
	for _, m := range c.invalid {
		drop(m.Section, m.Index, m.Reason)
	}

	for i, item := range c.NetworkElements {
		trimStrings(&item)
		if reason := check(&item); reason != "" {
			drop("network_elements", i, reason)
			continue
		}
		if model.IsSentinel(item.Name) {
			drop("network_elements", i, "sentinel name")
			continue
		}
		b.Elements = append(b.Elements, RawElement{
			ChunkID:     id,
			Name:        item.Name,
			Type:        item.Type,
			Description: item.Description,
		})
	}

	for i, item := range c.States {
		trimStrings(&item)
		if reason := check(&item); reason != "" {
			drop("states", i, reason)
			continue
		}
		if model.IsSentinel(item.Name) {
			drop("states", i, "sentinel name")
			continue
		}
		if model.HasSentinelParent(item.Name) {
			drop("states", i, "sentinel parent")
			continue
		}
		side, ok := model.ParseSide(item.Side)
		if !ok {
			drop("states", i, "unknown side")
			continue
		}
		b.States = append(b.States, RawState{
			ChunkID:     id,
			Name:        item.Name,
			Kind:        model.ParseKind(item.Type),
			Side:        side,
			Description: item.Description,
		})
	}

	for i, item := range c.Transitions {
		trimStrings(&item)
		if reason := check(&item); reason != "" {
			drop("transitions", i, reason)
			continue
		}
		if blankMessage(item.Message) {
			drop("transitions", i, "missing message")
			continue
		}
		if item.FromState == "" {
			drop("transitions", i, "missing from_state")
			continue
		}
		if model.IsSentinel(item.ToState) {
			drop("transitions", i, "sentinel to_state")
			continue
		}
		if model.HasSentinelParent(item.FromState) || model.HasSentinelParent(item.ToState) {
			drop("transitions", i, "sentinel parent")
			continue
		}
		side, ok := model.ParseSide(item.Side)
		if !ok {
			drop("transitions", i, "unknown side")
			continue
		}
		b.Transitions = append(b.Transitions, RawTransition{
			ChunkID:     id,
			Side:        side,
			From:        item.FromState,
			To:          item.ToState,
			Message:     item.Message,
			FromElement: item.FromElement,
			ToElement:   item.ToElement,
			Trigger:     item.Trigger,
			Condition:   item.Condition,
			Timing:      item.Timing,
			Step:        item.Step.Ptr(),
		})
	}

	for i, step := range c.RegistrationFlow {
		trimStrings(&step)
		if reason := check(&step); reason != "" {
			drop("registration_flow", i, reason)
			continue
		}
		if blankMessage(step.Message) {
			drop("registration_flow", i, "missing message")
			continue
		}
		if step.SourceState == "" {
			drop("registration_flow", i, "missing from_state")
			continue
		}
		if model.IsSentinel(step.DestinationState) {
			drop("registration_flow", i, "sentinel to_state")
			continue
		}
		if model.HasSentinelParent(step.SourceState) || model.HasSentinelParent(step.DestinationState) {
			drop("registration_flow", i, "sentinel parent")
			continue
		}
		side, ok := model.ParseSide(step.Side)
		if !ok {
			drop("registration_flow", i, "unknown side")
			continue
		}
		b.Transitions = append(b.Transitions, RawTransition{
			ChunkID:     id,
			Side:        side,
			From:        step.SourceState,
			To:          step.DestinationState,
			Message:     step.Message,
			FromElement: step.SourceElement,
			ToElement:   step.DestinationElement,
			Trigger:     step.Trigger,
			Condition:   strings.Join(nonEmpty(step.Conditions), "; "),
			Timing:      step.Timing,
			Step:        step.SequenceNumber.Ptr(),
		})
	}

	for i, item := range c.ElementRelationships {
		trimStrings(&item)
		if reason := check(&item); reason != "" {
			drop("element_relationships", i, reason)
			continue
		}
		b.Relationships = append(b.Relationships, RawRelationship{
			ChunkID:  id,
			Element1: item.Element1,
			Element2: item.Element2,
			Text:     item.Relationship,
		})
	}

	annotate := func(section string, items []AnnotationItem, value func(AnnotationItem) string) {
		for i, item := range items {
			trimStrings(&item)
			if reason := check(&item); reason != "" {
				drop(section, i, reason)
				continue
			}
			if model.IsSentinel(item.State) {
				drop(section, i, "sentinel state")
				continue
			}
			if model.HasSentinelParent(item.State) {
				drop(section, i, "sentinel parent")
				continue
			}
			if value(item) == "" {
				drop(section, i, "missing "+strings.TrimSuffix(section, "s"))
				continue
			}
			b.Annotations = append(b.Annotations, RawAnnotation{
				ChunkID:   id,
				State:     item.State,
				Trigger:   item.Trigger,
				Condition: item.Condition,
				Timing:    item.Timing,
			})
		}
	}
	annotate("triggers", c.Triggers, func(a AnnotationItem) string { return a.Trigger })
	annotate("conditions", c.Conditions, func(a AnnotationItem) string { return a.Condition })
	annotate("timing", c.Timing, func(a AnnotationItem) string { return a.Timing })

	return b
}

// blankMessage reports whether s holds nothing but quotes, underscores and
// space, which would canonicalize to an empty message name.
func blankMessage(s string) bool {
	return strings.TrimFunc(norm.NFKC.String(s), func(r rune) bool {
		return r == '"' || r == '\'' || r == '_' || unicode.IsSpace(r)
	}) == ""
}

// check validates v and returns a short reason, or "" when valid.
func check(v any) string {
	err := validate.Struct(v)
	if err == nil {
		return ""
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return "missing " + e.Field()
	default:
		return fmt.Sprintf("invalid %s (%s)", e.Field(), e.Tag())
	}
}

// trimStrings trims every string field of the struct pointed to by v.
func trimStrings(v any) {
	rv := reflect.ValueOf(v).Elem()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

func nonEmpty(ss []string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// naturalLess orders strings with embedded numbers numerically, so that
// "chunk-2" sorts before "chunk-10".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		if da && db {
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
