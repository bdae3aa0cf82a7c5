package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
)

func tr(chunk, from, msg, to string) normalize.Transition {
	t := normalize.Transition{
		Side:     model.SideUE,
		From:     from,
		To:       to,
		Message:  msg,
		Evidence: model.Evidence{ChunkID: chunk},
	}
	if from == model.Any {
		t.Wildcard = true
	}
	return t
}

func TestResolveCorroboration(t *testing.T) {
	res := Resolve([]normalize.Transition{
		tr("c1", "5GMM-NULL", "REGISTRATION REQUEST", "5GMM-REGISTERED-INITIATED"),
		tr("c2", "5GMM-NULL", "REGISTRATION REQUEST", "5GMM-REGISTERED-INITIATED"),
	})
	require.Len(t, res.Transitions, 1)
	got := res.Transitions[0]
	assert.Equal(t, 2, got.CorroborationCount)
	assert.Len(t, got.Evidence, 2)
	assert.Equal(t, []string{"c1", "c2"}, got.ChunkIDs)
	assert.Empty(t, res.Divergences)
}

func TestResolveSameChunkCountsOnce(t *testing.T) {
	res := Resolve([]normalize.Transition{
		tr("c1", "A", "M", "B"),
		tr("c1", "A", "M", "B"),
	})
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, 1, res.Transitions[0].CorroborationCount)
	assert.Len(t, res.Transitions[0].Evidence, 2)
}

func TestResolveWildcardNotFannedOut(t *testing.T) {
	res := Resolve([]normalize.Transition{
		tr("c1", "5GMM-REGISTERED", "DEREGISTRATION REQUEST", "5GMM-DEREGISTERED-INITIATED"),
		tr("c2", model.Any, "AUTHENTICATION REJECT", "5GMM-DEREGISTERED"),
	})
	require.Len(t, res.Transitions, 2)
	assert.Equal(t, 1, res.Wildcards)
	var wc []Transition
	for _, x := range res.Transitions {
		if x.Message == "AUTHENTICATION REJECT" {
			wc = append(wc, x)
		}
	}
	require.Len(t, wc, 1)
	assert.True(t, wc[0].Wildcard)
	assert.Equal(t, model.Any, wc[0].From)
}

func TestResolveDivergenceKeepsBoth(t *testing.T) {
	res := Resolve([]normalize.Transition{
		tr("c1", "5GMM-NULL", "REGISTRATION REQUEST", "5GMM-REGISTERED-INITIATED"),
		tr("c2", "5GMM-NULL", "REGISTRATION REQUEST", "5GMM-REGISTERED"),
		tr("c3", "5GMM-NULL", "REGISTRATION REQUEST", "5GMM-REGISTERED"),
	})
	require.Len(t, res.Transitions, 2)
	require.Len(t, res.Divergences, 1)
	assert.Equal(t, []string{"5GMM-REGISTERED", "5GMM-REGISTERED-INITIATED"}, res.Divergences[0].Targets)
}

func TestResolveKeepsSelfLoops(t *testing.T) {
	res := Resolve([]normalize.Transition{
		tr("c1", "5GMM-REGISTERED-INITIATED", "AUTHENTICATION REQUEST", "5GMM-REGISTERED-INITIATED"),
	})
	require.Len(t, res.Transitions, 1)
	assert.True(t, res.Transitions[0].SelfLoop())
	assert.Equal(t, 1, res.SelfLoops)
}

func TestResolveElementsFirstNonEmpty(t *testing.T) {
	a := tr("c1", "A", "M", "B")
	b := tr("c2", "A", "M", "B")
	b.FromElement, b.ToElement = "UE", "AMF"
	c := tr("c3", "A", "M", "B")
	c.FromElement = "AMF"
	res := Resolve([]normalize.Transition{a, b, c})
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, "UE", res.Transitions[0].FromElement)
	assert.Equal(t, "AMF", res.Transitions[0].ToElement)
}

func TestResolveDeterministicOrder(t *testing.T) {
	in := []normalize.Transition{
		tr("c1", "B", "M2", "C"),
		tr("c2", "A", "M1", "B"),
		tr("c3", model.Any, "M0", "A"),
	}
	in[0].Side = model.SideNetwork
	res := Resolve(in)
	var got []string
	for _, x := range res.Transitions {
		got = append(got, string(x.Side)+":"+x.From)
	}
	assert.Equal(t, []string{"UE:A", "UE:ANY", "NETWORK:B"}, got)
}

func TestSpecificity(t *testing.T) {
	step := 2
	ev := []model.Evidence{
		{ChunkID: "a", Trigger: "x"},
		{ChunkID: "b", Trigger: "x", Timing: "T3510", Step: &step},
	}
	assert.Equal(t, 3, specificity(ev))
}
