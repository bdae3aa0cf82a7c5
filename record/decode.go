package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Int accepts a JSON number or a numeric string. Non-numeric strings
// decode to a nil value rather than failing the whole record.
type Int struct {
	Value int
	Valid bool
}

func (i *Int) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		i.Value, i.Valid = n, true
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		i.Value, i.Valid = int(f), true
	}
	return nil
}

func (i Int) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(i.Value)), nil
}

// Ptr returns the value as *int, nil when absent.
func (i *Int) Ptr() *int {
	if i == nil || !i.Valid {
		return nil
	}
	v := i.Value
	return &v
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// codeBlockRe strips markdown code fences from extractor output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

type resultsEnvelope struct {
	Results []ChunkRecord `json:"results"`
}

// Decode reads chunk records from data. Accepted layouts are a JSON array,
// an object with a "results" array, a single record object, and JSON Lines.
// Payloads with syntax errors are repaired once before giving up.
func Decode(data []byte) ([]ChunkRecord, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if m := codeBlockRe.FindSubmatch(data); len(m) > 1 {
		data = bytes.TrimSpace(m[1])
	}
	if len(data) == 0 {
		return nil, nil
	}

	recs, err := decodeDocument(data)
	if err == nil {
		return recs, nil
	}

	if lines, lerr := decodeLines(data); lerr == nil && len(lines) > 0 {
		return lines, nil
	}

	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return nil, err
	}
	body := trimToJSON(data)
	if len(body) == 0 {
		return nil, fmt.Errorf("record: no json body: %w", err)
	}
	fixed, rerr := jsonrepair.JSONRepair(string(body))
	if rerr != nil {
		return nil, fmt.Errorf("record: repairing json: %w", rerr)
	}
	fixed = strings.TrimSpace(fixed)
	if fixed == "" {
		return nil, fmt.Errorf("record: repairing json: %w", err)
	}
	return decodeDocument([]byte(fixed))
}

func decodeDocument(data []byte) ([]ChunkRecord, error) {
	switch data[0] {
	case '[':
		var recs []ChunkRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, err
		}
		if _, ok := probe["results"]; ok {
			var env resultsEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return nil, err
			}
			return env.Results, nil
		}
		var rec ChunkRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return []ChunkRecord{rec}, nil
	}
	// Extractor output sometimes carries prose around the JSON body.
	trimmed := trimToJSON(data)
	if len(trimmed) == 0 || len(trimmed) == len(data) {
		return nil, &json.SyntaxError{Offset: 0}
	}
	return decodeDocument(trimmed)
}

func decodeLines(data []byte) ([]ChunkRecord, error) {
	var out []ChunkRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec ChunkRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// trimToJSON cuts data to the span between the first opening and the last
// closing bracket.
func trimToJSON(data []byte) []byte {
	start := bytes.IndexAny(data, "{[")
	if start < 0 {
		return nil
	}
	end := bytes.LastIndexAny(data, "}]")
	if end < start {
		return data[start:]
	}
	return data[start : end+1]
}

type rawChunk struct {
	ChunkID              string            `json:"chunk_id"`
	Source               string            `json:"source"`
	Section              string            `json:"section"`
	NetworkElements      []json.RawMessage `json:"network_elements"`
	States               []json.RawMessage `json:"states"`
	Transitions          []json.RawMessage `json:"transitions"`
	ElementRelationships []json.RawMessage `json:"element_relationships"`
	NetworkRelationships []json.RawMessage `json:"network_element_relationships"`
	Triggers             []json.RawMessage `json:"triggers"`
	Conditions           []json.RawMessage `json:"conditions"`
	Timing               []json.RawMessage `json:"timing"`
	RegistrationFlow     []json.RawMessage `json:"registration_flow"`
	Metadata             json.RawMessage   `json:"metadata"`
	Embedding            []float32         `json:"embedding"`
}

// UnmarshalJSON decodes each section item on its own so that one item of
// the wrong shape does not discard the rest of the chunk.
func (c *ChunkRecord) UnmarshalJSON(data []byte) error {
	var raw rawChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ChunkRecord{
		ChunkID:   raw.ChunkID,
		Source:    raw.Source,
		Section:   raw.Section,
		Embedding: raw.Embedding,
	}
	if len(raw.Metadata) > 0 {
		if err := json.Unmarshal(raw.Metadata, &c.Metadata); err != nil {
			c.invalid = append(c.invalid, MalformedRecord{Section: "metadata", Reason: "undecodable"})
		}
	}
	c.NetworkElements = decodeItems[ElementItem](c, "network_elements", raw.NetworkElements)
	c.States = decodeItems[StateItem](c, "states", raw.States)
	c.Transitions = decodeItems[TransitionItem](c, "transitions", raw.Transitions)
	c.ElementRelationships = decodeItems[RelationshipItem](c, "element_relationships",
		append(raw.ElementRelationships, raw.NetworkRelationships...))
	c.Triggers = decodeItems[AnnotationItem](c, "triggers", raw.Triggers)
	c.Conditions = decodeItems[AnnotationItem](c, "conditions", raw.Conditions)
	c.Timing = decodeItems[AnnotationItem](c, "timing", raw.Timing)
	c.RegistrationFlow = decodeItems[FlowStep](c, "registration_flow", raw.RegistrationFlow)
	return nil
}

func decodeItems[T any](c *ChunkRecord, section string, items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			c.invalid = append(c.invalid, MalformedRecord{Section: section, Index: i, Reason: "undecodable"})
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
