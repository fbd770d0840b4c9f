// Package csvout reads query point lists and writes result tables as CSV.
package csvout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.ngs.io/pointcast/internal/domain"
)

// Fixed leading columns of a result table.
var resultHeader = []string{"Latitude", "Longitude", "geometric Altitude (m)", "UTC", "Level"}

// ReadPoints reads a point list with header "lat,lon,alt[,time]". Times are
// RFC 3339; an empty time means now.
func ReadPoints(r io.Reader) ([]domain.QueryPoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	expected := []string{"lat", "lon", "alt", "time"}
	if len(header) < 3 || len(header) > 4 {
		return nil, fmt.Errorf("invalid CSV header: expected %v, got %v", expected, header)
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) != expected[i] {
			return nil, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, expected[i], h)
		}
	}

	points := make([]domain.QueryPoint, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) < 3 || len(record) > len(header) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, len(header), len(record))
		}

		var p domain.QueryPoint
		for i, dst := range []*float64{&p.Lat, &p.Lon, &p.Alt} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q: %w", line, expected[i], record[i], err)
			}
			*dst = v
		}
		if len(record) == 4 && strings.TrimSpace(record[3]) != "" {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(record[3]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid time %q: %w", line, record[3], err)
			}
			t = t.UTC()
			p.Time = &t
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// ReadPointsFile reads a point list from path.
func ReadPointsFile(path string) ([]domain.QueryPoint, error) {
	//nolint:gosec // G304: point list path comes from configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open point list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadPoints(f)
}

// Writer writes result rows as a table with one column per variable.
type Writer struct {
	w         *csv.Writer
	variables []string
	exactGMT  bool
}

// NewWriter writes the header for variables to w. With exactGMT an extra
// column holds the requested time as decimal hours, for comparison with
// flight records.
func NewWriter(w io.Writer, variables []string, exactGMT bool) (*Writer, error) {
	cw := csv.NewWriter(w)
	header := append([]string(nil), resultHeader...)
	header = append(header, variables...)
	if exactGMT {
		header = append(header, "exactGMT")
	}
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return &Writer{w: cw, variables: variables, exactGMT: exactGMT}, nil
}

// Write appends one row. Variables missing from the row are left empty.
func (w *Writer) Write(row domain.ResultRow) error {
	record := []string{
		strconv.FormatFloat(row.Point.Lat, 'f', 6, 64),
		strconv.FormatFloat(row.Point.Lon, 'f', 6, 64),
		strconv.FormatFloat(row.Point.Alt, 'f', 2, 64),
		row.Time.UTC().Format("2006-01-02 15:04:05"),
		strconv.Itoa(row.Level),
	}
	for _, v := range w.variables {
		if val, ok := row.Value(v); ok {
			record = append(record, strconv.FormatFloat(val, 'g', 8, 64))
		} else {
			record = append(record, "")
		}
	}
	if w.exactGMT {
		t := row.Time.UTC()
		if row.Point.Time != nil {
			t = row.Point.Time.UTC()
		}
		gmt := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
		record = append(record, strconv.FormatFloat(gmt, 'f', 4, 64))
	}
	if err := w.w.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}
	return nil
}

// WriteAll appends rows and flushes.
func (w *Writer) WriteAll(rows []domain.ResultRow) error {
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// FileName returns "{prefix}{yyyymmdd_hhmm}.csv" for now.
func FileName(prefix string, now time.Time) string {
	return prefix + now.UTC().Format("20060102_1504") + ".csv"
}

// WriteFile writes rows to a new file named after prefix and now in dir and
// returns its path.
func WriteFile(dir, prefix string, now time.Time, variables []string, exactGMT bool, rows []domain.ResultRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(prefix, now))
	//nolint:gosec // G304: output path comes from configuration.
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := NewWriter(f, variables, exactGMT)
	if err == nil {
		err = w.WriteAll(rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
