package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// flowColumn is the output column carrying the bucket or error marker.
const flowColumn = "flow"

// urlColumnNames are tried in order before falling back to content sniffing.
var urlColumnNames = []string{"companyUrl", "url", "link", "Website", "career_page_url"}

// Table is the in-memory result table: the input CSV plus a flow column,
// kept in input row order for the lifetime of a run.
type Table struct {
	Header  []string
	Rows    [][]string
	URLCol  int
	FlowCol int
}

// ReadInput loads the input CSV, locates the URL column, and ensures a flow
// column exists (added empty when the input lacks one).
func ReadInput(path string) (*Table, error) {
	records, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("input CSV is empty")
	}

	t := &Table{Header: records[0], Rows: records[1:]}

	t.URLCol, err = detectURLColumn(t.Header, t.Rows)
	if err != nil {
		return nil, err
	}

	t.FlowCol = columnIndex(t.Header, flowColumn)
	if t.FlowCol < 0 {
		t.Header = append(t.Header, flowColumn)
		t.FlowCol = len(t.Header) - 1
	}
	for i := range t.Rows {
		for len(t.Rows[i]) < len(t.Header) {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	return t, nil
}

// MergeExisting copies flow values from a previous run's output so finished
// rows are not reprocessed. A missing or structurally different output file
// is ignored and the run starts fresh.
func (t *Table) MergeExisting(outputPath string) (merged int) {
	records, err := readAll(outputPath)
	if err != nil || len(records) == 0 {
		return 0
	}
	flowCol := columnIndex(records[0], flowColumn)
	if flowCol < 0 || len(records)-1 != len(t.Rows) {
		return 0
	}
	for i, row := range records[1:] {
		if flowCol >= len(row) {
			continue
		}
		if flow := strings.TrimSpace(row[flowCol]); flow != "" {
			t.Rows[i][t.FlowCol] = flow
			merged++
		}
	}
	return merged
}

// Pending returns the requests still needing classification: rows with a
// usable URL whose flow is empty or an error marker. Reprocess forces every
// row back into the queue.
func (t *Table) Pending(reprocess bool) []types.ClassificationRequest {
	var tasks []types.ClassificationRequest
	for i, row := range t.Rows {
		rawURL := strings.TrimSpace(row[t.URLCol])
		if rawURL == "" || strings.EqualFold(rawURL, "nan") {
			continue
		}
		flow := strings.TrimSpace(row[t.FlowCol])
		if !reprocess && flow != "" && !types.IsErrorMarker(flow) {
			continue
		}
		tasks = append(tasks, types.ClassificationRequest{
			RowIndex: i,
			URL:      NormalizeURL(rawURL),
		})
	}
	return tasks
}

// SetFlow records a result for a row. The caller serialises access.
func (t *Table) SetFlow(index int, flow string) {
	if index < 0 || index >= len(t.Rows) {
		return
	}
	t.Rows[index][t.FlowCol] = flow
}

// Flow returns the current flow value for a row.
func (t *Table) Flow(index int) string {
	if index < 0 || index >= len(t.Rows) {
		return ""
	}
	return t.Rows[index][t.FlowCol]
}

// WriteAtomic persists the whole ordered table: temp file in the target
// directory, fsync, rename. Readers never observe a partial write and row
// order always matches the input.
func (t *Table) WriteAtomic(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".flow-*.csv")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// NormalizeURL prefixes bare hosts with https://.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

func readAll(path string) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// detectURLColumn tries well-known column names, then any column whose
// values contain "http", then gives up on the first column.
func detectURLColumn(header []string, rows [][]string) (int, error) {
	if len(header) == 0 {
		return 0, errors.New("input CSV has no columns")
	}
	for _, name := range urlColumnNames {
		if i := columnIndex(header, name); i >= 0 {
			return i, nil
		}
	}
	for col := range header {
		for _, row := range rows {
			if col < len(row) && strings.Contains(row[col], "http") {
				return col, nil
			}
		}
	}
	return 0, nil
}
