// Package report defines the wire schema produced by
// aggregate_server_info and consumed by the CLI renderer and the
// optional transport server, both external to the accounting core
// (spec.md §1, §6).
package report

import (
	"fmt"

	semver "github.com/Masterminds/semver/v3"
)

// SchemaVersion is the wire-format version stamped into every Report.
// Bump it whenever a field is added, removed, or changes meaning.
var SchemaVersion = semver.MustParse("1.0.0")

// StatLine is one entry of Report.Stats: a fingerprint and its current
// live byte count. Ordering follows StatID assignment order; zero
// current entries may be filtered by the aggregator (spec.md §4.5).
type StatLine struct {
	Fingerprint string `json:"fingerprint"`
	Current     uint64 `json:"current"`
	Peak        uint64 `json:"peak"`
	AllocCount  uint64 `json:"alloc_count"`
}

// Report is the point-in-time snapshot spec.md §4.5 describes:
// server_name, process-wide totals, and the per-fingerprint current
// list. SchemaVersion lets a consumer assert the reporter speaks a
// schema it understands before decoding the rest, the same role
// semver.Constraints plays for the package manager's registry
// protocol this module's teacher carries.
type Report struct {
	SchemaVersion string     `json:"schema_version"`
	ServerName    string     `json:"server_name"`
	TotalCurrent  uint64     `json:"total_current"`
	TotalPeak     uint64     `json:"total_peak"`
	TotalMetaInfo uint64     `json:"total_metainfo"`
	SystemMemory  uint64     `json:"system_memory,omitempty"`
	NumStats      int        `json:"num_stats"`
	Stats         []StatLine `json:"stats"`
}

// New builds an empty Report stamped with the current SchemaVersion.
func New(serverName string) *Report {
	return &Report{
		SchemaVersion: SchemaVersion.String(),
		ServerName:    serverName,
	}
}

// Compatible reports whether r's schema version satisfies constraint,
// e.g. ">=1.0.0, <2.0.0". Callers should check this before relying on
// fields introduced after v1.0.0.
func (r *Report) Compatible(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("report: invalid constraint %q: %w", constraint, err)
	}

	v, err := semver.NewVersion(r.SchemaVersion)
	if err != nil {
		return false, fmt.Errorf("report: invalid schema version %q: %w", r.SchemaVersion, err)
	}

	return c.Check(v), nil
}

// TotalKilobytes converts a byte count to the kilobyte unit the CLI
// renderer displays (spec.md §6's report schema note: "the renderer
// converts to kilobytes").
func TotalKilobytes(bytes uint64) float64 {
	return float64(bytes) / 1024.0
}
