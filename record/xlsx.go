package record

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads records laid out as one sheet per section ("states",
// "transitions", "network_elements", "element_relationships"). The first row
// of each sheet names the fields; a chunk_id column groups rows into chunks.
// Rows without a chunk_id belong to a chunk named after the sheet.
func LoadXLSX(path string) ([]ChunkRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("record: opening xlsx: %w", err)
	}
	defer f.Close()

	byID := make(map[string]*ChunkRecord)
	var order []string
	chunk := func(id string) *ChunkRecord {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &ChunkRecord{ChunkID: id, Source: path}
		byID[id] = c
		order = append(order, id)
		return c
	}

	sheets := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		section := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(sheet), " ", "_"))
		header := make([]string, len(rows[0]))
		for i, h := range rows[0] {
			header[i] = strings.ToLower(strings.TrimSpace(h))
		}

		known := true
		for r, row := range rows[1:] {
			cell := rowMap(header, row)
			id := cell["chunk_id"]
			if id == "" {
				id = sheet
			}
			switch section {
			case "states":
				c := chunk(id)
				c.States = append(c.States, StateItem{
					Name:        cell["name"],
					Type:        cell["type"],
					Side:        cell["side"],
					Description: cell["description"],
				})
			case "transitions":
				c := chunk(id)
				var step *Int
				if s := cell["step"]; s != "" {
					step = &Int{}
					if err := step.UnmarshalJSON([]byte(s)); err != nil || !step.Valid {
						slog.Warn("record: non-numeric step", "sheet", sheet, "chunk", id, "step", s)
						c.invalid = append(c.invalid, MalformedRecord{
							Section: "transitions",
							Index:   r,
							Reason:  "invalid step",
						})
						continue
					}
				}
				c.Transitions = append(c.Transitions, TransitionItem{
					FromState:   cell["from_state"],
					ToState:     cell["to_state"],
					Message:     cell["message"],
					FromElement: cell["from_element"],
					ToElement:   cell["to_element"],
					Trigger:     cell["trigger"],
					Condition:   cell["condition"],
					Timing:      cell["timing"],
					Step:        step,
					Side:        cell["side"],
				})
			case "network_elements", "elements":
				c := chunk(id)
				c.NetworkElements = append(c.NetworkElements, ElementItem{
					Name:        cell["name"],
					Type:        cell["type"],
					Description: cell["description"],
				})
			case "element_relationships", "relationships":
				c := chunk(id)
				c.ElementRelationships = append(c.ElementRelationships, RelationshipItem{
					Element1:     cell["element1"],
					Element2:     cell["element2"],
					Relationship: cell["relationship"],
				})
			default:
				known = false
			}
			if !known {
				break
			}
		}
		if known {
			sheets++
		}
	}

	if sheets == 0 {
		return nil, fmt.Errorf("record: no record sheets found in %s", path)
	}
	out := make([]ChunkRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func rowMap(header, row []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			m[h] = strings.TrimSpace(row[i])
		}
	}
	return m
}
