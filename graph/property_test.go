package graph

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/resolve"
)

var (
	propStates = []string{
		"5GMM-NULL", "5GMM-REGISTERING", "5GMM-REGISTERED", "5gmm registered",
		"5GMM-DEREGISTERED", "5GMM-DEREGISTERED.PLMN-SEARCH", "Unknown", "ANY",
		"Unknown.PLMN-SEARCH", "5GMM-REGISTERED.",
	}
	propMessages = []string{"REGISTRATION REQUEST", "Registration Accept message", "SERVICE REQUEST", "", `""`}
	propSides    = []string{"UE", "NETWORK", ""}
)

// corpusFrom decodes generated integers into chunk records. Every code
// picks a chunk, side, endpoints and message, so sentinels and empty
// messages are produced alongside valid transitions.
func corpusFrom(codes []int) []record.ChunkRecord {
	chunks := make([]record.ChunkRecord, 4)
	for i := range chunks {
		chunks[i].ChunkID = "p" + string(rune('a'+i))
	}
	for _, c := range codes {
		ch := &chunks[c%4]
		c /= 4
		side := propSides[c%len(propSides)]
		c /= len(propSides)
		from := propStates[c%len(propStates)]
		c /= len(propStates)
		to := propStates[c%len(propStates)]
		c /= len(propStates)
		msg := propMessages[c%len(propMessages)]
		ch.Transitions = append(ch.Transitions, record.TransitionItem{
			FromState: from, ToState: to, Message: msg, Side: side,
		})
	}
	return chunks
}

type pipeline struct {
	batch *record.Batch
	graph *Graph
}

func runPipeline(chunks []record.ChunkRecord) (pipeline, error) {
	batch, err := record.NewIngestor().Ingest(context.Background(), chunks)
	if err != nil {
		return pipeline{}, err
	}
	res, err := normalize.New().Normalize(batch)
	if err != nil {
		return pipeline{}, err
	}
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := NewBuilder(WithClock(func() time.Time { return epoch })).Build(context.Background(), Input{
		Table:         res.Table,
		Resolved:      resolve.Resolve(res.Transitions),
		Relationships: res.Relationships,
		Malformed:     batch.Stats.Malformed,
	})
	return pipeline{batch: batch, graph: g}, err
}

func codes() gopter.Gen {
	return gen.SliceOfN(40, gen.IntRange(0, 4*3*10*10*5-1))
}

func TestGraphProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("chunk order does not change the graph", prop.ForAll(
		func(cs []int, seed int64) bool {
			chunks := corpusFrom(cs)
			a, err := runPipeline(chunks)
			if err != nil {
				return false
			}
			shuffled := append([]record.ChunkRecord(nil), chunks...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			b, err := runPipeline(shuffled)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(a.graph.Snapshot(), b.graph.Snapshot())
		},
		codes(),
		gen.Int64(),
	))

	properties.Property("every transition is kept or counted as malformed", prop.ForAll(
		func(cs []int) bool {
			p, err := runPipeline(corpusFrom(cs))
			if err != nil {
				return false
			}
			return len(p.batch.Transitions)+p.batch.Stats.Malformed == len(cs)
		},
		codes(),
	))

	properties.Property("merged edges conserve evidence", prop.ForAll(
		func(cs []int) bool {
			p, err := runPipeline(corpusFrom(cs))
			if err != nil {
				return false
			}
			total := 0
			for _, side := range model.Sides {
				for _, tr := range p.graph.Transitions(side) {
					total += len(tr.Evidence)
					if tr.CorroborationCount != len(model.ChunkIDs(tr.Evidence)) {
						return false
					}
				}
			}
			return total == len(p.batch.Transitions)
		},
		codes(),
	))

	properties.Property("sentinel sources stay single wildcard edges", prop.ForAll(
		func(cs []int) bool {
			p, err := runPipeline(corpusFrom(cs))
			if err != nil {
				return false
			}
			type head struct {
				side    model.Side
				msg, to string
			}
			seen := make(map[head]bool)
			for _, side := range model.Sides {
				if _, ok := p.graph.State(side, model.Any); ok {
					return false
				}
				for _, tr := range p.graph.Transitions(side) {
					if tr.Wildcard != (tr.From == model.Any) {
						return false
					}
					if !tr.Wildcard {
						continue
					}
					h := head{side, tr.Message, tr.To}
					if seen[h] {
						return false
					}
					seen[h] = true
				}
			}
			return true
		},
		codes(),
	))

	properties.Property("substates are linked to an existing parent", prop.ForAll(
		func(cs []int) bool {
			p, err := runPipeline(corpusFrom(cs))
			if err != nil {
				return false
			}
			for _, side := range model.Sides {
				links := make(map[string]string)
				for _, l := range p.graph.PartOf(side) {
					links[l.Child] = l.Parent
				}
				for _, s := range p.graph.States(side) {
					if s.Parent == "" {
						continue
					}
					if links[s.Name] != s.Parent {
						return false
					}
					if _, ok := p.graph.State(side, s.Parent); !ok {
						return false
					}
				}
			}
			return true
		},
		codes(),
	))

	properties.TestingRun(t)
}
