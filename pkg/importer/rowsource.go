package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RowSource produces the ordered data rows of an uploaded file. The header row is not included.
type RowSource interface {
	Rows(ctx context.Context) ([]Row, error)
}

type RowSourceFunc func(ctx context.Context) ([]Row, error)

func (f RowSourceFunc) Rows(ctx context.Context) ([]Row, error) {
	return f(ctx)
}

// StaticRows serves rows that were parsed elsewhere.
type StaticRows []Row

func (s StaticRows) Rows(context.Context) ([]Row, error) {
	return s, nil
}

// NumberedSource is a RowSource that knows the file row each data row starts on. Sources that do
// not implement it are numbered consecutively from the row after the header.
type NumberedSource interface {
	RowSource
	NumberedRows(ctx context.Context) ([]Row, []int, error)
}

// CSVSource reads a comma separated file whose first record is the header.
type CSVSource struct {
	Path string
}

func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	rows, _, err := s.NumberedRows(ctx)
	return rows, err
}

func (s CSVSource) NumberedRows(ctx context.Context) ([]Row, []int, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", filepath.Base(s.Path), err)
	}
	defer f.Close()

	return ReadNumberedCSV(ctx, f)
}

// ReadCSV parses r into header keyed rows. Blank lines are skipped and short records leave the
// missing columns out.
func ReadCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	rows, _, err := ReadNumberedCSV(ctx, r)
	return rows, err
}

// ReadNumberedCSV is ReadCSV that also returns the file line each row starts on, so skipped blank
// lines and quoted line breaks do not shift row numbers.
func ReadNumberedCSV(ctx context.Context, r io.Reader) ([]Row, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("CSV file has no headers or is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []Row
	var lines []int
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse CSV file: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := make(Row, len(header))
		for i, value := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
		lines = append(lines, line)
	}
	return rows, lines, nil
}

// ConfinePath resolves path inside dir. A relative path is taken from dir and a path that leaves
// dir is rejected. An empty dir allows any path.
func ConfinePath(dir, path string) (string, error) {
	if dir == "" {
		return path, nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "invalid upload directory: %s", err.Error())
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "File path must be inside the upload directory")
	}
	return resolved, nil
}

// SourceWithin is SourceFor for files that must live under dir.
func SourceWithin(dir string) SourceResolver {
	return func(spec models.ImportSpec) (RowSource, error) {
		path, err := ConfinePath(dir, spec.FilePath)
		if err != nil {
			return nil, err
		}
		spec.FilePath = path
		return SourceFor(spec)
	}
}

// SourceFor picks the row source for an import spec by file extension.
func SourceFor(spec models.ImportSpec) (RowSource, error) {
	switch strings.ToLower(filepath.Ext(spec.FilePath)) {
	case ".csv":
		return CSVSource{Path: spec.FilePath}, nil
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "Unsupported file type: %s. Only CSV files can be imported by the worker.", filepath.Ext(spec.FilePath))
	}
}
