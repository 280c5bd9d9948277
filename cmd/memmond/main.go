// Command memmond is a tiny demonstration server: it stands in for the
// "long-running database server" spec.md assumes hosts the accounting
// subsystem. It initializes memmon, simulates allocation traffic from
// several goroutines at distinct call sites, and serves the report
// endpoint over HTTP/3 so memmon-report has something to query.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	"github.com/cubrid-go/memmon/internal/memmon"
	"github.com/cubrid-go/memmon/internal/memmon/configwatch"
	"github.com/cubrid-go/memmon/internal/memmon/transport"
)

func main() {
	var (
		addr       string
		serverName string
		workers    int
		configPath string
	)

	flag.StringVar(&addr, "addr", ":4443", "HTTP/3 listen address for the report endpoint")
	flag.StringVar(&serverName, "name", "memmond", "server name stamped into every report")
	flag.IntVar(&workers, "workers", 8, "number of simulated allocator goroutines")
	flag.StringVar(&configPath, "config", "", "optional JSON config file to hot-reload source-root markers from")
	flag.Parse()

	state := memmon.Initialize(serverName, memmon.WithEnabled(true), memmon.WithDebugDump(true))
	defer memmon.Finalize()

	if configPath != "" {
		w, err := configwatch.New(configPath, state)
		if err != nil {
			fmt.Fprintf(os.Stderr, "memmond: configwatch: %v\n", err)
		} else {
			defer w.Close()
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	for i := 0; i < workers; i++ {
		go simulateWorker(i, quit)
	}

	srv := transport.New(addr, nil, transport.Options{MaxIdleTimeout: 30 * time.Second})

	boundAddr, err := srv.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memmond: starting report server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("memmond: serving report on %s%s\n", boundAddr, transport.ReportPath)

	select {
	case <-stop:
	case err := <-srv.Error():
		fmt.Fprintf(os.Stderr, "memmond: report server error: %v\n", err)
	}

	close(quit)
	_ = srv.Stop()
}

// simulateWorker allocates and frees memory at a handful of fixed call
// sites, mimicking several distinct database components competing for
// the same accounting tables the property tests in
// internal/memmon/*_test.go exercise directly.
func simulateWorker(id int, quit <-chan struct{}) {
	rng := rand.New(rand.NewSource(int64(id) + 1))
	file := fmt.Sprintf("worker_%d.c", id%3)

	var live []unsafe.Pointer

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			for _, p := range live {
				memmon.Free(p)
			}

			return
		case <-ticker.C:
			if len(live) > 32 || (len(live) > 0 && rng.Intn(2) == 0) {
				idx := rng.Intn(len(live))
				memmon.Free(live[idx])
				live = append(live[:idx], live[idx+1:]...)

				continue
			}

			size := uintptr(16 + rng.Intn(2000))
			line := 10 + rng.Intn(5)

			if p := memmon.Allocate(size, file, line); p != nil {
				live = append(live, p)
			}
		}
	}
}
