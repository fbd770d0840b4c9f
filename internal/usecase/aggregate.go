package usecase

import (
	"sort"

	"go.ngs.io/pointcast/internal/domain"
)

// ResultAggregator collects per-point outcomes and emits rows in input order.
type ResultAggregator struct {
	variables []string
	rows      map[int]domain.ResultRow
	failures  map[int]*domain.PointError
}

// NewResultAggregator creates an aggregator for rows carrying variables.
func NewResultAggregator(variables []string) *ResultAggregator {
	return &ResultAggregator{
		variables: variables,
		rows:      map[int]domain.ResultRow{},
		failures:  map[int]*domain.PointError{},
	}
}

// Add records the row of point index.
func (a *ResultAggregator) Add(index int, row domain.ResultRow) {
	row.Index = index
	a.rows[index] = row
}

// Fail records the failure of a point.
func (a *ResultAggregator) Fail(err *domain.PointError) {
	a.failures[err.Index] = err
}

// Variables returns the column order of the rows.
func (a *ResultAggregator) Variables() []string {
	return a.variables
}

// Rows returns the successful rows ordered by point index.
func (a *ResultAggregator) Rows() []domain.ResultRow {
	idx := sortedKeys(a.rows)
	out := make([]domain.ResultRow, len(idx))
	for i, k := range idx {
		out[i] = a.rows[k]
	}
	return out
}

// Failures returns the point failures ordered by point index.
func (a *ResultAggregator) Failures() []*domain.PointError {
	idx := sortedKeys(a.failures)
	out := make([]*domain.PointError, len(idx))
	for i, k := range idx {
		out[i] = a.failures[k]
	}
	return out
}

// FailuresByKind counts failures per error kind.
func (a *ResultAggregator) FailuresByKind() map[string]int {
	out := map[string]int{}
	for _, f := range a.failures {
		out[f.Kind()]++
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
