package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	meridian "github.com/meridiandb/meridian-go"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/pkg/agentconfig"
	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

var withQuery bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a cluster and drive the configured workload",
	RunE:  runWorkload,
}

func init() {
	runCmd.Flags().BoolVar(&withQuery, "with-query", false, "also issue query-service requests alongside the KV workload")
}

func runWorkload(c *cobra.Command, _ []string) error {
	cfg, err := agentconfig.Load(configFile)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.ToLoggerConfig())
	reg := metrics.New()

	ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cl *meridian.Cluster
	if cfg.Metrics.Enabled {
		startDiagnosticsServer(cfg.Metrics.Addr, log, func() *meridian.Cluster { return cl })
	}

	cluster, err := meridian.Connect(ctx, cfg.Cluster.ConnectionString, cfg.Cluster.Username, cfg.Cluster.Password, meridian.Options{
		Network:     meridian.Network(cfg.Cluster.Network),
		DialTimeout: cfg.Cluster.DialTimeout,
		Logger:      log,
		Metrics:     reg,
		Retry:       retry.DefaultPolicy(),
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer cluster.Close()
	cl = cluster

	if _, err := cluster.OpenBucket(ctx, cfg.Cluster.Bucket); err != nil {
		return fmt.Errorf("open bucket %q: %w", cfg.Cluster.Bucket, err)
	}

	deadline := cfg.Workload.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	runCtx, runCancel := context.WithTimeout(ctx, deadline)
	defer runCancel()

	report := drive(runCtx, cluster, cfg)
	log.Info("workload complete",
		"operations", report.total,
		"errors", report.errors,
		"elapsed", report.elapsed,
	)

	diag := cluster.Diagnostics()
	log.Info("cluster diagnostics", "state", diag.State, "endpoints", len(diag.Endpoints))
	return nil
}

type workloadReport struct {
	total   int64
	errors  int64
	elapsed time.Duration
}

func drive(ctx context.Context, cluster *meridian.Cluster, cfg *agentconfig.Config) workloadReport {
	concurrency := cfg.Workload.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	totalOps := cfg.Workload.Operations
	value := make([]byte, cfg.Workload.ValueSizeBytes)
	rand.Read(value)

	var ops, errs int64
	var wg sync.WaitGroup
	start := time.Now()
	perWorker := totalOps / concurrency

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				key := []byte(fmt.Sprintf("meridian-bench/%d/%d", worker, i))
				var opErr error
				if rand.Float64() < cfg.Workload.ReadRatio {
					_, opErr = cluster.Submit(ctx, cfg.Cluster.Bucket, &getOp{bucket: cfg.Cluster.Bucket, key: key})
				} else {
					_, opErr = cluster.Submit(ctx, cfg.Cluster.Bucket, &upsertOp{bucket: cfg.Cluster.Bucket, key: key, value: value})
				}
				atomic.AddInt64(&ops, 1)
				if opErr != nil {
					atomic.AddInt64(&errs, 1)
				}
				if withQuery {
					stmt := fmt.Sprintf("SELECT META().id FROM `%s` USE KEYS %q", cfg.Cluster.Bucket, key)
					_, _ = cluster.Submit(ctx, "", &queryOp{statement: stmt, mode: cluster.PreparedStatementMode()})
				}
			}
		}(w)
	}
	wg.Wait()

	return workloadReport{total: atomic.LoadInt64(&ops), errors: atomic.LoadInt64(&errs), elapsed: time.Since(start)}
}

// startDiagnosticsServer exposes the bench tool's own /healthz and
// /metrics over HTTP — purely operational visibility into the CLI
// process itself, not part of the client core's dispatch path.
func startDiagnosticsServer(addr string, log *slog.Logger, cluster func() *meridian.Cluster) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/diagnostics", func(w http.ResponseWriter, _ *http.Request) {
		c := cluster()
		if c == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "%+v\n", c.Diagnostics())
	})

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("diagnostics server exited", "error", err)
		}
	}()
}
