package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/nasgraph/model"
)

// Test case categories.
const (
	CategoryTransition = "transition"
	CategoryWildcard   = "wildcard"
	CategoryPath       = "path"
	CategoryTrace      = "trace"
	CategoryState      = "state"
)

// Dataset is a collection of expectations about a built graph.
type Dataset struct {
	Name  string     `json:"name" yaml:"name"`
	Tests []TestCase `json:"tests" yaml:"tests"`
}

// TestCase is one expectation. Which fields apply depends on Category:
//
//	transition  From -[Message]-> To exists, with at least MinCorroboration
//	wildcard    an ANY -[Message]-> To edge exists
//	path        To is reachable from From within MaxHops (Unreachable inverts)
//	trace       replaying Messages from From ends in To, or blocks at
//	            BlockedAt when set
//	state       From is a state of Side, of Kind when set
type TestCase struct {
	Name             string     `json:"name" yaml:"name"`
	Category         string     `json:"category" yaml:"category"`
	Side             model.Side `json:"side" yaml:"side"`
	From             string     `json:"from,omitempty" yaml:"from,omitempty"`
	Message          string     `json:"message,omitempty" yaml:"message,omitempty"`
	To               string     `json:"to,omitempty" yaml:"to,omitempty"`
	Messages         []string   `json:"messages,omitempty" yaml:"messages,omitempty"`
	MaxHops          int        `json:"max_hops,omitempty" yaml:"max_hops,omitempty"`
	Wildcards        bool       `json:"wildcards,omitempty" yaml:"wildcards,omitempty"`
	Unreachable      bool       `json:"unreachable,omitempty" yaml:"unreachable,omitempty"`
	BlockedAt        *int       `json:"blocked_at,omitempty" yaml:"blocked_at,omitempty"`
	Kind             model.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	MinCorroboration int        `json:"min_corroboration,omitempty" yaml:"min_corroboration,omitempty"`
	Explanation      string     `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// LoadDataset reads a YAML (or JSON) dataset file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("reading dataset: %w", err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = path
	}
	for i, tc := range ds.Tests {
		switch tc.Category {
		case CategoryTransition, CategoryWildcard, CategoryPath, CategoryTrace, CategoryState:
		default:
			return ds, fmt.Errorf("dataset %s: test %d: unknown category %q", path, i, tc.Category)
		}
	}
	return ds, nil
}

// RegistrationDataset returns the 5GMM registration and de-registration
// behaviour of TS 24.501 clauses 5.5.1 and 5.5.2 as seen by the UE.
func RegistrationDataset() Dataset {
	return Dataset{
		Name: "TS 24.501 5GMM registration (UE)",
		Tests: []TestCase{
			{
				Name:        "initial registration starts",
				Category:    CategoryTransition,
				Side:        model.SideUE,
				From:        "5GMM-DEREGISTERED",
				Message:     "REGISTRATION REQUEST",
				To:          "5GMM-REGISTERED-INITIATED",
				Explanation: "5.5.1.2.2",
			},
			{
				Name:        "registration accepted",
				Category:    CategoryTransition,
				Side:        model.SideUE,
				From:        "5GMM-REGISTERED-INITIATED",
				Message:     "REGISTRATION ACCEPT",
				To:          "5GMM-REGISTERED",
				Explanation: "5.5.1.2.4",
			},
			{
				Name:        "UE-initiated de-registration starts",
				Category:    CategoryTransition,
				Side:        model.SideUE,
				From:        "5GMM-REGISTERED",
				Message:     "DEREGISTRATION REQUEST",
				To:          "5GMM-DEREGISTERED-INITIATED",
				Explanation: "5.5.2.2.1",
			},
			{
				Name:        "registration reachable",
				Category:    CategoryPath,
				Side:        model.SideUE,
				From:        "5GMM-DEREGISTERED",
				To:          "5GMM-REGISTERED",
				MaxHops:     4,
				Explanation: "5.1.3.2.1",
			},
			{
				Name:        "attach then detach",
				Category:    CategoryTrace,
				Side:        model.SideUE,
				From:        "5GMM-DEREGISTERED",
				Messages:    []string{"REGISTRATION REQUEST", "REGISTRATION ACCEPT", "DEREGISTRATION REQUEST"},
				To:          "5GMM-DEREGISTERED-INITIATED",
				Explanation: "5.5.1, 5.5.2",
			},
			{
				Name:     "registered state declared",
				Category: CategoryState,
				Side:     model.SideUE,
				From:     "5GMM-REGISTERED",
			},
		},
	}
}
