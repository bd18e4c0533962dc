// internal/metrics/metrics.go
//
// Prometheus collectors shared by the bot and the userbot process:
//
//	signaldesk_provider_misses_total{provider}  price lookups a provider could not answer
//	signaldesk_price_unavailable_total          lookups every provider missed
//	signaldesk_level_hits_total{level}          TP1/TP2/TP3/SL/BREAKEVEN replies
//	signaldesk_trades_archived_total{reason}    trades leaving the active table
//	signaldesk_active_trades                    size of the tracker mirror
//	signaldesk_trials_total{event}              granted|rejected|expired
//	signaldesk_dm_enqueued_total{label}         queue inserts by label
//	signaldesk_dm_delivered_total{result}       sent|failed|deferred
//	signaldesk_dm_queue_pending                 pending rows seen by the last drain
//	signaldesk_job_runs_total{job,result}       scheduler executions
//
// Collectors live in the default registry and are served at /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-desk-bot/pkg/logger"
)

const namespace = "signaldesk"

var (
	ProviderMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_misses_total",
			Help:      "Price lookups a provider could not answer",
		},
		[]string{"provider"},
	)

	PriceUnavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_unavailable_total",
			Help:      "Price lookups every provider missed",
		},
	)

	LevelHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_hits_total",
			Help:      "Level events replied into chats",
		},
		[]string{"level"},
	)

	TradesArchived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_archived_total",
			Help:      "Trades moved to completed_trades, by completion reason",
		},
		[]string{"reason"},
	)

	ActiveTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trades",
			Help:      "Trades in the tracker mirror",
		},
	)

	Trials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Trial lifecycle events",
		},
		[]string{"event"}, // granted|rejected|expired
	)

	DMEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dm_enqueued_total",
			Help:      "Direct messages written to the queue",
		},
		[]string{"label"},
	)

	DMDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dm_delivered_total",
			Help:      "Userbot delivery attempts by result",
		},
		[]string{"result"}, // sent|failed|deferred
	)

	DMQueuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dm_queue_pending",
			Help:      "Pending queue rows seen by the last drain",
		},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduler job executions",
		},
		[]string{"job", "result"}, // ok|error|skipped
	)
)

func init() {
	prometheus.MustRegister(ProviderMisses, PriceUnavailable)
	prometheus.MustRegister(LevelHits, TradesArchived, ActiveTrades)
	prometheus.MustRegister(Trials, DMEnqueued, DMDelivered, DMQueuePending)
	prometheus.MustRegister(JobRuns)
}

// Handler serves /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve runs the metrics listener until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("📈 Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
