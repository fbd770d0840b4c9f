package domain

import (
	"fmt"
	"path"
	"strings"
)

// Domain tags which of the two overlapping model domains covers a point.
type Domain string

const (
	// DomainRegional is the high-resolution regional domain (ICON-D2).
	DomainRegional Domain = "regional"
	// DomainContinental is the lower-resolution continental domain (ICON-EU).
	DomainContinental Domain = "continental"
)

// DefaultBaseURL is the root of the DWD open-data NWP tree.
const DefaultBaseURL = "https://opendata.dwd.de/weather/nwp"

// ModelFamily describes one published model and the naming conventions of
// its files.
type ModelFamily struct {
	Name         string // File prefix and directory, e.g. "icon-d2".
	Area         string // Area token in file names, e.g. "germany".
	Domain       Domain
	FullLevels   int  // Number of full model levels. Half levels are FullLevels+1.
	MaxLeadHours int  // Longest published forecast-hour offset.
	UpperVars    bool // Variable token is upper case in file names.
}

// ICOND2 is the regional ICON-D2 model.
var ICOND2 = ModelFamily{
	Name:         "icon-d2",
	Area:         "germany",
	Domain:       DomainRegional,
	FullLevels:   65,
	MaxLeadHours: 27,
}

// ICONEU is the continental ICON-EU nest.
var ICONEU = ModelFamily{
	Name:         "icon-eu",
	Area:         "europe",
	Domain:       DomainContinental,
	FullLevels:   60,
	MaxLeadHours: 27,
	UpperVars:    true,
}

// Families lists the supported model families by domain.
var Families = map[Domain]ModelFamily{
	DomainRegional:    ICOND2,
	DomainContinental: ICONEU,
}

// FamilyFor returns the model family serving domain d.
func FamilyFor(d Domain) (ModelFamily, error) {
	f, ok := Families[d]
	if !ok {
		return ModelFamily{}, fmt.Errorf("unknown domain %q", d)
	}
	return f, nil
}

// HalfLevels returns the number of half-level interfaces.
func (f ModelFamily) HalfLevels() int {
	return f.FullLevels + 1
}

// FileIdentity identifies one published single-level GRIB2 file.
type FileIdentity struct {
	Family   ModelFamily
	Date     string // yyyymmdd of the cycle.
	Hour     string // hh of the cycle.
	Offset   int    // Forecast hour. Always 0 for HHL.
	Level    int    // Model level (1-based) or half level for HHL.
	Variable string // Lower case. "hhl" for half-level heights.
}

// IsHHL reports whether the file holds half-level heights.
func (id FileIdentity) IsHHL() bool {
	return id.Variable == "hhl"
}

// CycleDir returns the cache directory name of the cycle, "{date}_{hh}".
func (id FileIdentity) CycleDir() string {
	return id.Date + "_" + id.Hour
}

// Filename returns the published file name, including the .bz2 suffix.
func (id FileIdentity) Filename() string {
	f := id.Family
	if id.IsHHL() {
		if f.UpperVars {
			return fmt.Sprintf("%s_%s_regular-lat-lon_time-invariant_%s%s_%d_HHL.grib2.bz2",
				f.Name, f.Area, id.Date, id.Hour, id.Level)
		}
		return fmt.Sprintf("%s_%s_regular-lat-lon_time-invariant_%s%s_000_%d_hhl.grib2.bz2",
			f.Name, f.Area, id.Date, id.Hour, id.Level)
	}
	v := id.Variable
	if f.UpperVars {
		v = strings.ToUpper(v)
	}
	return fmt.Sprintf("%s_%s_regular-lat-lon_model-level_%s%s_%03d_%d_%s.grib2.bz2",
		f.Name, f.Area, id.Date, id.Hour, id.Offset, id.Level, v)
}

// LocalName returns the decompressed file name.
func (id FileIdentity) LocalName() string {
	return strings.TrimSuffix(id.Filename(), ".bz2")
}

// RemotePath returns the path of the file below the open-data base URL.
func (id FileIdentity) RemotePath() string {
	return path.Join(id.Family.Name, "grib", id.Hour, id.Variable, id.Filename())
}

// URL returns the download URL of the file below baseURL.
func (id FileIdentity) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + id.RemotePath()
}

func (id FileIdentity) String() string {
	return id.Family.Name + "/" + id.CycleDir() + "/" + id.LocalName()
}
