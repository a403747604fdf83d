package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/xuri/excelize/v2"

	"exemplar/internal/domain"
	"exemplar/internal/platform/applog"
)

// Column names of the corpus header row.
const (
	ColumnInput  = "user_input"
	ColumnIntent = "intent"
	ColumnStyle  = "style_tags"
	ColumnOutput = "json_output"
)

// Options tunes how a corpus is read.
type Options struct {
	// Sheet selects the xlsx sheet; the first sheet is used when empty.
	Sheet string
	// OutputSchema is an optional JSON Schema file every json_output must satisfy.
	OutputSchema string
}

// Result holds the accepted records and the number of rejected rows.
type Result struct {
	Records []domain.Record
	Skipped int
}

// Load reads the corpus at path. Rows missing a required field are skipped and
// counted; an absent or unparsable source fails with domain.ErrLoad.
func Load(path string, opts Options) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", domain.ErrLoad, path, err)
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path, opts.Sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return Result{}, fmt.Errorf("%w: unsupported corpus format %q", domain.ErrLoad, filepath.Ext(path))
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", domain.ErrLoad, path, err)
	}

	var schema *gojsonschema.Schema
	if opts.OutputSchema != "" {
		schema, err = loadSchema(opts.OutputSchema)
		if err != nil {
			return Result{}, fmt.Errorf("%w: output schema: %w", domain.ErrLoad, err)
		}
	}

	res, err := parseRows(rows, schema)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", domain.ErrLoad, path, err)
	}
	if res.Skipped > 0 {
		applog.Warn("[Corpus] skipped malformed rows", "path", path, "skipped", res.Skipped)
	}
	applog.Info("[Corpus] loaded", "path", path, "records", len(res.Records))
	return res, nil
}

func parseRows(rows [][]string, schema *gojsonschema.Schema) (Result, error) {
	if len(rows) == 0 {
		return Result{}, errors.New("no header row")
	}
	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColumnInput, ColumnIntent, ColumnOutput} {
		if _, ok := cols[required]; !ok {
			return Result{}, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var res Result
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := domain.Record{
			InputText:    cell(row, ColumnInput),
			Intent:       cell(row, ColumnIntent),
			StyleTags:    cell(row, ColumnStyle),
			TargetOutput: cell(row, ColumnOutput),
		}
		if rec.InputText == "" || rec.Intent == "" || rec.TargetOutput == "" {
			res.Skipped++
			continue
		}
		if schema != nil && !matchesSchema(schema, rec.TargetOutput) {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	return f.GetRows(sheet)
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func loadSchema(path string) (*gojsonschema.Schema, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs)))
}

func matchesSchema(schema *gojsonschema.Schema, doc string) bool {
	res, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return false
	}
	return res.Valid()
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
