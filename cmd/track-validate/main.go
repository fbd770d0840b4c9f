// Command track-validate estimates model values along recorded flight tracks
// in validation mode, writing one CSV per flight and, when an observed
// column is named, reporting the bias and RMSE of the estimates against it.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"go.ngs.io/pointcast/internal/adapter/store/csvout"
	"go.ngs.io/pointcast/internal/app"
	"go.ngs.io/pointcast/internal/config"
	"go.ngs.io/pointcast/internal/domain"
	"go.ngs.io/pointcast/internal/log"
)

// Column names of the flight-track export.
const (
	colLat    = "P860: Latitude (degrees)"
	colLon    = "P860: Longitude (degrees)"
	colAltFt  = "P860: GPS Altitude (ft)"
	colDate   = "Flight Date (Exact) (UTC)"
	colGMT    = "P860: GMT"
	colFlight = "Flight Record"
)

const feetToMeters = 0.3048

// Box limits the track points that are estimated.
type Box struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	AltMin, AltMax float64 // Meters.
}

func (b Box) contains(p domain.QueryPoint) bool {
	return p.Lat >= b.LatMin && p.Lat <= b.LatMax &&
		p.Lon >= b.LonMin && p.Lon <= b.LonMax &&
		p.Alt >= b.AltMin && p.Alt <= b.AltMax
}

// trackPoint is one record of a flight.
type trackPoint struct {
	Point    domain.QueryPoint
	Observed float64 // NaN when no observed column is read.
}

// flight is the time-ordered track of one flight record.
type flight struct {
	Record string
	Points []trackPoint
}

// parseTracks reads a tab-separated export and groups rows by flight record,
// keeping only points inside box. Flights keep their order of first
// appearance and points are sorted by time.
func parseTracks(r io.Reader, box Box, observed string) ([]flight, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	required := []string{colLat, colLon, colAltFt, colDate, colGMT, colFlight}
	if observed != "" {
		required = append(required, observed)
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var order []string
	byRecord := map[string]*flight{}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			if i := idx[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		lat, err1 := strconv.ParseFloat(field(colLat), 64)
		lon, err2 := strconv.ParseFloat(field(colLon), 64)
		altFt, err3 := strconv.ParseFloat(field(colAltFt), 64)
		gmt, err4 := strconv.ParseFloat(field(colGMT), 64)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if gmt < 0 || gmt > 24 {
			continue
		}
		day, err := parseFlightDate(field(colDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t := day.Add(time.Duration(math.Round(gmt * float64(time.Hour/time.Second))) * time.Second)

		tp := trackPoint{
			Point:    domain.QueryPoint{Lat: lat, Lon: lon, Alt: altFt * feetToMeters, Time: &t},
			Observed: math.NaN(),
		}
		if !box.contains(tp.Point) {
			continue
		}
		if observed != "" {
			if v, err := strconv.ParseFloat(field(observed), 64); err == nil {
				tp.Observed = v
			}
		}

		nr := field(colFlight)
		f, ok := byRecord[nr]
		if !ok {
			f = &flight{Record: nr}
			byRecord[nr] = f
			order = append(order, nr)
		}
		f.Points = append(f.Points, tp)
	}

	flights := make([]flight, 0, len(order))
	for _, nr := range order {
		f := byRecord[nr]
		sort.SliceStable(f.Points, func(i, j int) bool { return f.Points[i].Point.Time.Before(*f.Points[j].Point.Time) })
		flights = append(flights, *f)
	}
	return flights, nil
}

// parseFlightDate accepts "17 Nov 2022" style dates, optionally followed by
// a time of day, and ISO dates.
func parseFlightDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) >= 3 {
		if t, err := time.Parse("2 Jan 2006", strings.Join(fields[:3], " ")); err == nil {
			return t.UTC(), nil
		}
	}
	if len(fields) >= 1 {
		if t, err := time.Parse("2006-01-02", fields[0]); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid flight date %q", s)
}

// calculateStats returns the mean of estimate minus observation and the RMSE.
func calculateStats(estimates, observed []float64) (bias, rmse float64, n int) {
	diffs := make([]float64, 0, len(estimates))
	for i := range estimates {
		if math.IsNaN(observed[i]) || math.IsNaN(estimates[i]) {
			continue
		}
		diffs = append(diffs, estimates[i]-observed[i])
	}
	if len(diffs) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	bias = stat.Mean(diffs, nil)
	sq := make([]float64, len(diffs))
	for i, d := range diffs {
		sq[i] = d * d
	}
	return bias, math.Sqrt(stat.Mean(sq, nil)), len(diffs)
}

func main() {
	configPath := flag.String("config", "", "Path to pointcast.yaml")
	tracksPath := flag.String("tracks", "", "Tab-separated flight-track export")
	outDir := flag.String("out", "./validation", "Output directory for per-flight CSV files")
	latMin := flag.Float64("lat-min", 44, "Minimum latitude")
	latMax := flag.Float64("lat-max", 50, "Maximum latitude")
	lonMin := flag.Float64("lon-min", 6, "Minimum longitude")
	lonMax := flag.Float64("lon-max", 10, "Maximum longitude")
	altMin := flag.Float64("alt-min", 380, "Minimum altitude (m)")
	altMax := flag.Float64("alt-max", 4000, "Maximum altitude (m)")
	observed := flag.String("observed", "", "Column holding an observed value to compare against (optional)")
	observedVar := flag.String("var", "t", "Model variable compared with -observed")
	offset := flag.Float64("offset", 0, "Added to observed values before comparing, e.g. 273.15 for Celsius")
	flag.Parse()

	if *tracksPath == "" {
		fmt.Fprintln(os.Stderr, "error: -tracks is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg.Validation.Enabled = true

	if err := log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetZapLogger()

	//nolint:gosec // G304: track export path comes from the command line.
	f, err := os.Open(*tracksPath)
	if err != nil {
		log.Fatalw("failed to open tracks", "error", err)
	}
	box := Box{*latMin, *latMax, *lonMin, *lonMax, *altMin, *altMax}
	flights, err := parseTracks(f, box, *observed)
	_ = f.Close()
	if err != nil {
		log.Fatalw("failed to parse tracks", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalw("failed to initialize engine", "error", err)
	}
	defer func() { _ = engine.Close() }()

	vars := domain.NormalizeVariables(cfg.Batch.Variables)
	if *observed != "" && !contains(vars, *observedVar) {
		vars = append(vars, *observedVar)
	}

	fmt.Printf("%-12s %8s %8s %10s %10s\n", "flight", "points", "failed", "bias", "rmse")
	for _, fl := range flights {
		points := make([]domain.QueryPoint, len(fl.Points))
		obs := map[domain.QueryPoint]float64{}
		for i, tp := range fl.Points {
			points[i] = tp.Point
			obs[tp.Point] = tp.Observed + *offset
		}

		start := time.Now()
		res, err := engine.Batch.Run(ctx, points, vars)
		if err != nil {
			log.Fatalw("batch aborted", "flight", fl.Record, "error", err)
		}
		path, err := csvout.WriteFile(*outDir, fmt.Sprintf("flight%s_", fl.Record), time.Now(), res.Variables, true, res.Rows)
		if err != nil {
			log.Fatalw("failed to write results", "flight", fl.Record, "error", err)
		}
		logger.Info("flight done",
			zap.String("flight", fl.Record),
			zap.String("path", filepath.Base(path)),
			zap.Duration("took", time.Since(start)),
		)

		bias, rmse := math.NaN(), math.NaN()
		if *observed != "" {
			estimates := make([]float64, 0, len(res.Rows))
			observations := make([]float64, 0, len(res.Rows))
			for _, row := range res.Rows {
				v, _ := row.Value(*observedVar)
				estimates = append(estimates, v)
				observations = append(observations, obs[row.Point])
			}
			bias, rmse, _ = calculateStats(estimates, observations)
		}
		fmt.Printf("%-12s %8d %8d %10.3f %10.3f\n", fl.Record, len(points), len(res.Failures), bias, rmse)
	}

	if err := engine.SaveSnapshot(); err != nil {
		logger.Warn("failed to save half-level snapshot", zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
