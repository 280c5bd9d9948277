package memmon

import (
	"io"
	"os"

	memerrors "github.com/cubrid-go/memmon/internal/memmon/errors"
)

// Config controls how a ProcessState behaves once initialized. A single
// EnableMonitoring flag is the "configuration parameter read at
// initialize" spec.md §6 describes; everything else below is ambient
// texture (source-root rule, alignment, diagnostics) rather than a
// second on/off switch.
type Config struct {
	ServerName        string
	EnableMonitoring  bool
	SourceRootMarkers []string
	AlignmentSize     uintptr
	DebugDump         bool
	DebugSink         io.Writer
	MaxStats          int
	OnDiagnostic      func(*memerrors.StandardError)
}

// Option configures a Config. Mirrors the teacher allocator package's
// functional-option pattern.
type Option func(*Config)

func defaultConfig(serverName string) *Config {
	return &Config{
		ServerName:        serverName,
		EnableMonitoring:  true,
		SourceRootMarkers: []string{"/src/", "\\src\\"},
		AlignmentSize:     8,
		DebugDump:         false,
		DebugSink:         os.Stderr,
		MaxStats:          0,
	}
}

// WithEnabled overrides whether monitoring is active. A configuration
// flag that routes to this (read once, at Initialize) is the external
// collaborator spec.md §6 assumes exists outside this module.
func WithEnabled(enabled bool) Option {
	return func(c *Config) { c.EnableMonitoring = enabled }
}

// WithSourceRootMarkers sets the include-path markers used to collapse
// allocation sites reached through different include paths onto one
// fingerprint bucket (spec.md §3).
func WithSourceRootMarkers(markers []string) Option {
	return func(c *Config) { c.SourceRootMarkers = append([]string(nil), markers...) }
}

// WithAlignment records an alignment in Config.AlignmentSize. The
// interceptor does not read it: the tracking header is always
// headerSize (16) bytes with no extra padding, whatever this is set to.
func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// WithDebugDump enables the finalize-time human-readable dump of
// non-zero stat entries (spec.md §4.5, debug builds only).
func WithDebugDump(enabled bool) Option {
	return func(c *Config) { c.DebugDump = enabled }
}

// WithDebugSink overrides where FinalizeDump writes its leak-detection
// listing (spec.md §4.5's "finalization dump... to a diagnostic
// sink"). Defaults to os.Stderr.
func WithDebugSink(w io.Writer) Option {
	return func(c *Config) { c.DebugSink = w }
}

// WithMaxStats caps the number of distinct fingerprints the registry
// will register before returning NoStat for any further first-seen
// fingerprint, modeling spec.md §4.2's "Allocation failure inside the
// registry during append" RegistryExhaustion case. Zero (the default)
// means unlimited.
func WithMaxStats(n int) Option {
	return func(c *Config) { c.MaxStats = n }
}

// WithDiagnosticSink installs the one-shot hook accounting failures are
// reported through (spec.md §7's "one-shot diagnostic may be emitted").
// A nil sink (the default) silently drops diagnostics.
func WithDiagnosticSink(fn func(*memerrors.StandardError)) Option {
	return func(c *Config) { c.OnDiagnostic = fn }
}
