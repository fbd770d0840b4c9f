package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestCycleResolver_CurrentAndOlderGeneration(t *testing.T) {
	var r CycleResolver
	now := utc("2024-05-10T14:00:00Z")

	run, err := r.Resolve(ICOND2, now, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "20240510", run.Date())
	assert.Equal(t, "12", run.Hour())
	assert.Equal(t, 2, run.Offset)
	assert.False(t, run.Older)

	run, err = r.Resolve(ICOND2, now, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "09", run.Hour())
	assert.Equal(t, 5, run.Offset)
	assert.True(t, run.Older)
}

func TestCycleResolver_NowRoundsPastHalfHour(t *testing.T) {
	var r CycleResolver

	run, err := r.Resolve(ICOND2, utc("2024-05-10T13:31:00Z"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "12", run.Hour())
	assert.Equal(t, 2, run.Offset)

	run, err = r.Resolve(ICOND2, utc("2024-05-10T13:30:00Z"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Offset)
}

func TestCycleResolver_OlderCrossesMidnight(t *testing.T) {
	var r CycleResolver
	run, err := r.Resolve(ICONEU, utc("2024-05-10T01:10:00Z"), nil, true)
	require.NoError(t, err)
	assert.Equal(t, "20240509", run.Date())
	assert.Equal(t, "21", run.Hour())
	assert.Equal(t, 4, run.Offset)
}

func TestCycleResolver_ExplicitTarget(t *testing.T) {
	var r CycleResolver
	now := utc("2024-05-10T14:05:00Z")

	tests := []struct {
		target string
		want   int
	}{
		{"2024-05-10T14:00:00Z", 2},
		{"2024-05-10T18:29:00Z", 6},
		{"2024-05-10T18:30:00Z", 7},
		{"2024-05-11T15:00:00Z", 27},
	}
	for _, tt := range tests {
		target := utc(tt.target)
		run, err := r.Resolve(ICOND2, now, &target, false)
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.want, run.Offset, tt.target)
		assert.Equal(t, "12", run.Hour())
	}
}

func TestCycleResolver_OutOfForecastWindow(t *testing.T) {
	var r CycleResolver
	now := utc("2024-05-10T14:05:00Z")

	for _, s := range []string{"2024-05-10T11:00:00Z", "2024-05-11T16:00:00Z"} {
		target := utc(s)
		_, err := r.Resolve(ICOND2, now, &target, false)
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, ErrOutOfForecastWindow), s)
	}
}

func TestCycleResolver_Idempotent(t *testing.T) {
	var r CycleResolver
	now := utc("2024-05-10T20:47:13Z")
	target := utc("2024-05-11T03:12:00Z")

	for _, older := range []bool{false, true} {
		a, errA := r.Resolve(ICONEU, now, &target, older)
		b, errB := r.Resolve(ICONEU, now, &target, older)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, a, b)
	}
}

func TestCycleResolver_ValidationMode(t *testing.T) {
	r := CycleResolver{Validation: true}
	target := utc("2022-11-17T10:20:00Z")

	// Reference is 09:20, so the cycle is 09 and the lead is 1h20m.
	run, err := r.Resolve(ICOND2, time.Time{}, &target, false)
	require.NoError(t, err)
	assert.Equal(t, "09", run.Hour())
	assert.Equal(t, 1, run.Offset)

	run, err = r.Resolve(ICOND2, time.Time{}, &target, true)
	require.NoError(t, err)
	assert.Equal(t, "06", run.Hour())
	assert.Equal(t, 4, run.Offset)

	_, err = r.Resolve(ICOND2, time.Time{}, nil, false)
	assert.Error(t, err)

	short := CycleResolver{Validation: true, MaxLeadHours: 3}
	_, err = short.Resolve(ICOND2, time.Time{}, &target, true)
	assert.ErrorIs(t, err, ErrOutOfForecastWindow)
}

func TestModelRun_FileIdentity(t *testing.T) {
	run := ModelRun{Family: ICOND2, Cycle: utc("2024-05-10T12:00:00Z"), Offset: 5}
	id := run.File(42, "qv")
	assert.Equal(t, "icon-d2_germany_regular-lat-lon_model-level_2024051012_005_42_qv.grib2.bz2", id.Filename())
	assert.Equal(t, "icon-d2/grib/12/qv/icon-d2_germany_regular-lat-lon_model-level_2024051012_005_42_qv.grib2.bz2", id.RemotePath())
	assert.Equal(t, "20240510_12", id.CycleDir())
	assert.Equal(t, "icon-d2_germany_regular-lat-lon_model-level_2024051012_005_42_qv.grib2", id.LocalName())

	eu := ModelRun{Family: ICONEU, Cycle: utc("2024-05-10T09:00:00Z"), Offset: 12}
	assert.Equal(t,
		DefaultBaseURL+"/icon-eu/grib/09/t/icon-eu_europe_regular-lat-lon_model-level_2024051009_012_7_T.grib2.bz2",
		eu.File(7, "t").URL(DefaultBaseURL+"/"))

	assert.Equal(t, "icon-d2_germany_regular-lat-lon_time-invariant_2024051012_000_66_hhl.grib2.bz2", run.HHLFile(66).Filename())
	assert.Equal(t, "icon-eu/grib/09/hhl/icon-eu_europe_regular-lat-lon_time-invariant_2024051009_1_HHL.grib2.bz2", eu.HHLFile(1).RemotePath())
}
