// Package transport exposes aggregate_server_info as a minimal
// JSON-over-HTTP/3 endpoint, reusing the teacher's quic-go-backed
// HTTP3Server wrapper (internal/runtime/netstack/http3.go). This is the
// in-scope half of spec.md §1's "RPC layer" external collaborator: the
// surrounding server owns routing, auth, and discovery, but nothing
// stops the accounting module from offering operators a direct network
// surface when they don't want to shell out to the CLI.
package transport

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	quic "github.com/quic-go/quic-go"
	http3 "github.com/quic-go/quic-go/http3"

	"github.com/cubrid-go/memmon/internal/memmon"
	"github.com/cubrid-go/memmon/internal/memmon/report"
)

// ReportPath is the single route this server answers.
const ReportPath = "/v1/report"

// ReportServer serves the current memmon report over HTTP/3.
type ReportServer struct {
	pc    net.PacketConn
	srv   *http3.Server
	close func() error
	errC  chan error
	addr  string
}

// Options mirrors the teacher's HTTP3Options: the QUIC transport knobs
// an operator might reasonably want to tune for a report endpoint that
// is polled frequently but carries no latency-sensitive payload.
type Options struct {
	MaxIdleTimeout  time.Duration
	KeepAlivePeriod time.Duration
}

// New builds a ReportServer bound to addr. tlsCfg may be nil, in which
// case a TLS-1.3-only config is synthesized, matching the teacher's
// NewHTTP3ServerWithOptions enforcement (HTTP/3 requires TLS 1.3).
func New(addr string, tlsCfg *tls.Config, opts Options) *ReportServer {
	tlsCfg = ensureTLS13(tlsCfg)

	qc := &quic.Config{}
	if opts.MaxIdleTimeout > 0 {
		qc.MaxIdleTimeout = opts.MaxIdleTimeout
	}

	if opts.KeepAlivePeriod > 0 {
		qc.KeepAlivePeriod = opts.KeepAlivePeriod
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ReportPath, handleReport)

	s := &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: mux, QUICConfig: qc}

	return &ReportServer{srv: s, addr: addr, errC: make(chan error, 1)}
}

func handleReport(w http.ResponseWriter, r *http.Request) {
	rpt := memmon.AggregateServerInfo()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(rpt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Start begins serving on an ephemeral UDP port if addr ends with
// ":0". Use the returned address to reach the server.
func (s *ReportServer) Start() (string, error) {
	var err error

	s.pc, err = net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}

	realAddr := s.pc.LocalAddr().String()
	done := make(chan struct{})

	go func() {
		if err := s.srv.Serve(s.pc); err != nil {
			select {
			case s.errC <- err:
			default:
			}
		}

		close(done)
	}()

	s.close = func() error {
		_ = s.pc.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}

		return nil
	}

	return realAddr, nil
}

// Stop stops the server.
func (s *ReportServer) Stop() error {
	if s.close != nil {
		return s.close()
	}

	return nil
}

// Error returns a non-blocking channel that receives the first serve
// error, if any.
func (s *ReportServer) Error() <-chan error {
	return s.errC
}

// FetchReport is a small client helper: it dials addr over HTTP/3 and
// decodes the report payload, checking SchemaVersion compatibility
// before returning it.
func FetchReport(addr string, tlsCfg *tls.Config, constraint string) (*report.Report, error) {
	tlsCfg = ensureTLS13(tlsCfg)

	tr := &http3.Transport{TLSClientConfig: tlsCfg}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	defer tr.Close()

	resp, err := client.Get("https://" + addr + ReportPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpt report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rpt); err != nil {
		return nil, err
	}

	if constraint != "" {
		ok, err := rpt.Compatible(constraint)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, &schemaMismatchError{got: rpt.SchemaVersion, want: constraint}
		}
	}

	return &rpt, nil
}

type schemaMismatchError struct {
	got, want string
}

func (e *schemaMismatchError) Error() string {
	return "transport: report schema " + e.got + " does not satisfy " + e.want
}

func ensureTLS13(tlsCfg *tls.Config) *tls.Config {
	if tlsCfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{"h3"}}
	}

	if tlsCfg.MinVersion == 0 || tlsCfg.MinVersion < tls.VersionTLS13 {
		c := tlsCfg.Clone()
		c.MinVersion = tls.VersionTLS13

		if len(c.NextProtos) == 0 {
			c.NextProtos = []string{"h3"}
		}

		return c
	}

	return tlsCfg
}
