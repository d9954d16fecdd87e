package eval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Query struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	RelevantDocIDs []string `json:"relevant_doc_ids"`
}

// LoadDataset reads labelled questions from a .jsonl or .xlsx file.
func LoadDataset(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(f)
	case ".jsonl", ".json":
		return ReadJSONL(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

func ReadJSONL(r io.Reader) ([]Query, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var out []Query
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var q Query
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		if err := q.normalize(len(out)); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		out = append(out, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return out, nil
}

// ReadXLSX reads the first sheet. The header row must name a "question" and a
// "relevant_doc_ids" column; ids inside a cell are separated by commas,
// semicolons or whitespace. An "id" column is optional.
func ReadXLSX(r io.Reader) ([]Query, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	rows, err := book.GetRows(book.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("workbook has no rows")
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	questionCol, ok := columns["question"]
	if !ok {
		return nil, errors.New(`header is missing a "question" column`)
	}
	relevantCol, ok := columns["relevant_doc_ids"]
	if !ok {
		return nil, errors.New(`header is missing a "relevant_doc_ids" column`)
	}
	idCol, hasID := columns["id"]

	var out []Query
	for i, row := range rows[1:] {
		q := Query{
			Question:       cell(row, questionCol),
			RelevantDocIDs: splitIDs(cell(row, relevantCol)),
		}
		if hasID {
			q.ID = cell(row, idCol)
		}
		if q.Question == "" && len(q.RelevantDocIDs) == 0 {
			continue
		}
		if err := q.normalize(len(out)); err != nil {
			return nil, fmt.Errorf("sheet row %d: %w", i+2, err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (q *Query) normalize(index int) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return errors.New("question is empty")
	}
	q.RelevantDocIDs = DedupDocIDs(q.RelevantDocIDs)
	if len(q.RelevantDocIDs) == 0 {
		return errors.New("relevant_doc_ids is empty")
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q%d", index+1)
	}
	return nil
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func splitIDs(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
}
