package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"gorm.io/gorm"

	taskpool "github.com/riftlab/taskpool"
	"github.com/riftlab/taskpool/internal/core"
)

// statsSnapshot is what each /stats subscriber receives once a second.
type statsSnapshot struct {
	ActiveThreads     int     `json:"active_threads"`
	IdleThreads       int     `json:"idle_threads"`
	QueuedTasks       int     `json:"queued_tasks"`
	CompletedTasks    uint64  `json:"completed_tasks"`
	TotalTasks        uint64  `json:"total_tasks"`
	UtilizationPct    float64 `json:"utilization_pct"`
	AvgExecutionMicro int64   `json:"avg_execution_micros"`
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgFn := poolFlags(fs)
	addr := fs.String("addr", ":8787", "HTTP listen address")
	dbPath := fs.String("history-db", "taskpoolctl.db", "sqlite run-history database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := taskpool.InitThreadPool(cfgFn())
	if err != nil {
		return fmt.Errorf("initializing pool: %w", err)
	}
	defer pool.ShutdownThreadPool()

	db, err := openHistory(*dbPath)
	if err != nil {
		return fmt.Errorf("opening run-history database: %w", err)
	}

	var seq atomic.Uint64

	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		handleRun(w, r, pool, db, &seq)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(w, r, pool)
	})

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	core.Warnf("taskpoolctl serve: listening on %s (POST /run, GET /stats)", *addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// handleRun submits the request body as a script task, blocks until it
// completes, and appends the outcome to the run-history log.
func handleRun(w http.ResponseWriter, r *http.Request, pool *taskpool.Pool, db *gorm.DB, seq *atomic.Uint64) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	started := time.Now()
	n := seq.Add(1)
	done := make(chan error, 1)

	if err := pool.AddScriptTaskToPool(string(body), func(_ any, taskErr error) {
		done <- taskErr
	}, nil); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	select {
	case taskErr := <-done:
		recordRun(db, n, started, time.Since(started), taskErr)
		if taskErr != nil {
			http.Error(w, taskErr.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	case <-time.After(30 * time.Second):
		http.Error(w, "task timed out", http.StatusGatewayTimeout)
	}
}

// handleStats upgrades to a WebSocket and pushes a stats snapshot once a
// second until the client disconnects.
func handleStats(w http.ResponseWriter, r *http.Request, pool *taskpool.Pool) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		core.Warnf("stats: accepting websocket: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := pool.GetThreadPoolStats()
			snap := statsSnapshot{
				ActiveThreads:     s.ActiveThreads,
				IdleThreads:       s.IdleThreads,
				QueuedTasks:       s.QueuedTasks,
				CompletedTasks:    s.CompletedTasks,
				TotalTasks:        s.TotalTasks,
				UtilizationPct:    s.UtilizationPct,
				AvgExecutionMicro: s.AvgExecutionTime.Microseconds(),
			}
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := wsjson.Write(writeCtx, conn, snap)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
