// Command memmon-report is a thin CLI renderer for the memory
// accounting subsystem's report, the spec's "CLI that renders the
// report" — explicitly an external collaborator, but worth shipping
// here as the module's own worked example of consuming the public API
// (cli.PrintVersion / cli.ExitWithError idiom the teacher uses
// throughout its cmd/orizon-* tools).
package main

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cubrid-go/memmon/internal/memmon/report"
	"github.com/cubrid-go/memmon/internal/memmon/transport"
)

func main() {
	var (
		addr          string
		jsonOutput    bool
		constraint    string
		insecureTLS   bool
		schemaVersion bool
	)

	flag.StringVar(&addr, "addr", "", "HTTP/3 address of a running memmond report endpoint (host:port)")
	flag.BoolVar(&jsonOutput, "json", false, "print the raw report JSON instead of a table")
	flag.StringVar(&constraint, "require-schema", "", "reject reports whose schema_version does not satisfy this constraint, e.g. '>=1.0.0, <2.0.0'")
	flag.BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (testing only)")
	flag.BoolVar(&schemaVersion, "schema-version", false, "print report.SchemaVersion and exit")
	flag.Parse()

	if schemaVersion {
		fmt.Println(report.SchemaVersion.String())
		return
	}

	if addr == "" {
		exitWithError("must pass -addr host:port of a memmond report endpoint")
	}

	var tlsCfg *tls.Config
	if insecureTLS {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}

	rpt, err := transport.FetchReport(addr, tlsCfg, constraint)
	if err != nil {
		exitWithError("fetching report: %v", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(rpt); err != nil {
			exitWithError("encoding report: %v", err)
		}

		return
	}

	printTable(rpt)
}

func printTable(rpt *report.Report) {
	fmt.Printf("server: %s (schema %s)\n", rpt.ServerName, rpt.SchemaVersion)
	fmt.Printf("total current: %10.1f KB\n", report.TotalKilobytes(rpt.TotalCurrent))
	fmt.Printf("total peak:    %10.1f KB\n", report.TotalKilobytes(rpt.TotalPeak))
	fmt.Printf("bookkeeping:   %10.1f KB\n", report.TotalKilobytes(rpt.TotalMetaInfo))
	fmt.Printf("system memory: %10.1f KB\n", report.TotalKilobytes(rpt.SystemMemory))
	fmt.Printf("distinct stats: %d\n\n", rpt.NumStats)

	fmt.Printf("%-48s %12s %12s %10s\n", "fingerprint", "current(KB)", "peak(KB)", "allocs")

	for _, s := range rpt.Stats {
		fmt.Printf("%-48s %12.1f %12.1f %10d\n", s.Fingerprint, report.TotalKilobytes(s.Current), report.TotalKilobytes(s.Peak), s.AllocCount)
	}
}

func exitWithError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "memmon-report: "+format+"\n", args...)
	os.Exit(1)
}
