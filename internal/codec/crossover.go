package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

// ReadCrossoverLog parses a header-less crossover log. Each row holds
// "Key: value" cells:
//
//	Generation: 1,Parent_1: (ind1, 2),Parent_2: (ind2, 3),New_Individual: new_ind
//
// Parent cells are either "(id, annotation)" or a bare id. An optional
// "Operation: crossover|mutation" cell overrides the operation inferred from
// the number of distinct parents.
func ReadCrossoverLog(path string, in io.Reader) ([]model.CrossoverRecord, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	records := make([]model.CrossoverRecord, 0, 64)
	row := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, runerr.Malformed(path, err, "invalid CSV format at row %d: %v", row, err)
		}
		if blankRecord(fields) {
			continue
		}
		record, err := parseCrossoverRow(mergeParenthesized(fields), row)
		if err != nil {
			return nil, runerr.Malformed(path, err, "invalid CSV format at row %d: %v", row, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// WriteCrossoverLog renders records in the layout ReadCrossoverLog reads.
func WriteCrossoverLog(out io.Writer, records []model.CrossoverRecord) error {
	for _, record := range records {
		cells := []string{fmt.Sprintf("Generation: %d", record.Generation)}
		for i, parent := range record.Parents {
			if parent.Annotation != "" {
				cells = append(cells, fmt.Sprintf("Parent_%d: (%s, %s)", i+1, parent.ID, parent.Annotation))
			} else {
				cells = append(cells, fmt.Sprintf("Parent_%d: %s", i+1, parent.ID))
			}
		}
		cells = append(cells, "New_Individual: "+record.Child)
		if record.Operation != "" {
			cells = append(cells, "Operation: "+string(record.Operation))
		}
		if _, err := io.WriteString(out, strings.Join(cells, ",")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func parseCrossoverRow(cells []string, row int) (model.CrossoverRecord, error) {
	record := model.CrossoverRecord{Row: row}
	hasGeneration := false
	seenParents := make(map[string]struct{})
	for _, cell := range cells {
		key, value, ok := strings.Cut(cell, ":")
		if !ok {
			return model.CrossoverRecord{}, fmt.Errorf("cell %q is not a 'key: value' pair", cell)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch {
		case key == "generation":
			generation, err := strconv.Atoi(value)
			if err != nil {
				return model.CrossoverRecord{}, fmt.Errorf("generation %q is not an integer", value)
			}
			record.Generation = generation
			hasGeneration = true
		case strings.HasPrefix(key, "parent"):
			if value == "" || strings.EqualFold(value, "none") {
				continue
			}
			parent, err := parseParent(value)
			if err != nil {
				return model.CrossoverRecord{}, err
			}
			if _, dup := seenParents[parent.ID]; dup {
				continue
			}
			seenParents[parent.ID] = struct{}{}
			record.Parents = append(record.Parents, parent)
		case key == "new_individual" || key == "child":
			record.Child = value
		case key == "operation":
			switch model.Operation(strings.ToLower(value)) {
			case model.OpCrossover:
				record.Operation = model.OpCrossover
			case model.OpMutation:
				record.Operation = model.OpMutation
			default:
				return model.CrossoverRecord{}, fmt.Errorf("unsupported operation %q", value)
			}
		default:
			return model.CrossoverRecord{}, fmt.Errorf("unknown column %q", key)
		}
	}

	if !hasGeneration {
		return model.CrossoverRecord{}, fmt.Errorf("missing Generation column")
	}
	if record.Child == "" {
		return model.CrossoverRecord{}, fmt.Errorf("missing New_Individual column")
	}
	if len(record.Parents) == 0 {
		return model.CrossoverRecord{}, fmt.Errorf("no parents recorded for %q", record.Child)
	}
	if record.Operation == "" {
		record.Operation = model.OpMutation
		if len(record.Parents) > 1 {
			record.Operation = model.OpCrossover
		}
	}
	return record, nil
}

func parseParent(value string) (model.ParentRef, error) {
	if !strings.HasPrefix(value, "(") {
		return model.ParentRef{ID: value}, nil
	}
	if !strings.HasSuffix(value, ")") {
		return model.ParentRef{}, fmt.Errorf("unterminated parent tuple %q", value)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
	id, annotation, _ := strings.Cut(inner, ",")
	id = strings.Trim(strings.TrimSpace(id), `'"`)
	if id == "" {
		return model.ParentRef{}, fmt.Errorf("empty parent id in %q", value)
	}
	return model.ParentRef{ID: id, Annotation: strings.Trim(strings.TrimSpace(annotation), `'"`)}, nil
}

// mergeParenthesized re-joins cells that the CSV reader split inside an
// unquoted "(id, annotation)" tuple.
func mergeParenthesized(fields []string) []string {
	merged := make([]string, 0, len(fields))
	depth := 0
	for _, field := range fields {
		if depth > 0 {
			merged[len(merged)-1] += ", " + strings.TrimSpace(field)
		} else {
			merged = append(merged, field)
		}
		depth += strings.Count(field, "(") - strings.Count(field, ")")
		if depth < 0 {
			depth = 0
		}
	}
	return merged
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
