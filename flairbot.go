package flairbot

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flairbot/auditstore"
	"flairbot/reddit"
)

// Platform is what the run loop needs from the Reddit client. It exists so
// the loop can be exercised against a fake in tests.
type Platform interface {
	FetchRecentPosts(ctx context.Context, limit int) ([]reddit.Post, error)
	SendDirectMessage(ctx context.Context, author, subject, body string) error
	RemovePost(ctx context.Context, fullname string) error
	ReplyPublic(ctx context.Context, fullname, body string) error
}

type Flairbot struct {
	logger    *slog.Logger
	client    Platform
	ledger    *Ledger
	policy    Policy
	templates MessageTemplates
	audit     *auditstore.Store

	interval    time.Duration
	metricsAddr string
	dryRun      bool

	postsProcessed *prometheus.CounterVec
	actionErrors   *prometheus.CounterVec
	runDuration    prometheus.Histogram
	ledgerSize     prometheus.Gauge
}

type Args struct {
	Logger      *slog.Logger
	Client      Platform
	Ledger      *Ledger
	Policy      Policy
	Templates   MessageTemplates
	Audit       *auditstore.Store
	Interval    time.Duration
	MetricsAddr string
	DryRun      bool
}

func New(args *Args) (*Flairbot, error) {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	f := &Flairbot{
		logger:      args.Logger,
		client:      args.Client,
		ledger:      args.Ledger,
		policy:      args.Policy,
		templates:   args.Templates,
		audit:       args.Audit,
		interval:    args.Interval,
		metricsAddr: args.MetricsAddr,
		dryRun:      args.DryRun,
	}

	f.postsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairbot_posts_processed",
		Help: "posts processed per run by decision",
	}, []string{"decision"})

	f.actionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairbot_action_errors",
		Help: "failed platform actions by error kind",
	}, []string{"kind"})

	f.runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flairbot_run_duration_seconds",
		Help:    "histogram of full run durations",
		Buckets: prometheus.ExponentialBucketsRange(0.01, 120, 15),
	})

	f.ledgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flairbot_ledger_size",
		Help: "number of post ids currently tracked as reminded",
	})

	return f, nil
}

// Run executes runs on a fixed-period grid until the context is cancelled.
// The sleep before each run is computed against a fixed epoch, so a slow run
// shortens the following sleep instead of compounding drift. An in-flight
// run always completes, including ledger persistence, before Run returns.
func (f *Flairbot) Run(ctx context.Context) error {
	if f.metricsAddr != "" {
		metricsServer := http.NewServeMux()
		metricsServer.Handle("/metrics", promhttp.Handler())

		go func() {
			f.logger.Info("starting metrics server", "addr", f.metricsAddr)
			if err := http.ListenAndServe(f.metricsAddr, metricsServer); err != nil {
				f.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	epoch := time.Now()

	for {
		f.RunOnce(ctx, time.Now())

		sleep := f.interval - time.Since(epoch)%f.interval

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RunOnce fetches one batch and processes it against the ledger at now. The
// ledger is pruned and persisted at the end even when nothing happened, so
// the tracking start survives restarts.
func (f *Flairbot) RunOnce(ctx context.Context, now time.Time) {
	start := time.Now()

	f.logger.Info("run starting")

	posts, err := f.client.FetchRecentPosts(ctx, f.policy.BatchSize)
	if err != nil {
		f.logger.Error("error fetching recent posts", "error", err)
	}

	for _, post := range posts {
		decision := Classify(post, f.ledger, now, f.policy)
		f.handlePost(ctx, post, decision, now)
		f.postsProcessed.WithLabelValues(decision.String()).Inc()
	}

	if evicted := f.ledger.Prune(f.policy.LedgerCap()); evicted > 0 {
		f.logger.Info("pruned stale ledger entries", "evicted", evicted, "remaining", f.ledger.Len())
	}

	if err := f.ledger.Save(); err != nil {
		f.logger.Error("error saving state", "error", err)
	}

	f.ledgerSize.Set(float64(f.ledger.Len()))
	f.runDuration.Observe(time.Since(start).Seconds())

	f.logger.Info("run finished", "posts", len(posts), "duration", time.Since(start).String())
}
