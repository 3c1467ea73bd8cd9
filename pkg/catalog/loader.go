package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/records"
	"github.com/NERVsystems/poimap/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a single dataset download.
	DefaultTimeout = 20 * time.Second

	// maxDatasetSize caps the body read from the dataset server.
	maxDatasetSize = 8 << 20
)

// ErrSuperseded is returned by Refresh when a refresh started later has
// already installed its catalog. The store keeps the newer one.
var ErrSuperseded = core.NewError(core.ErrRefreshSuperseded, "a newer dataset is already installed")

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Loader downloads the dataset and installs it into a Store.
type Loader struct {
	url     string
	timeout time.Duration
	client  *http.Client
	store   *Store
	logger  *slog.Logger

	// seq numbers refreshes in start order
	seq atomic.Uint64

	installMu sync.Mutex
	installed uint64
}

// NewLoader creates a loader that writes to store.
func NewLoader(cfg LoaderConfig, store *Store) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = core.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loader{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		store:   store,
		logger:  cfg.Logger.With("component", "catalog"),
	}
}

// URL returns the dataset location.
func (l *Loader) URL() string { return l.url }

// Refresh downloads, parses and validates the dataset, then replaces the
// store contents. Any failure leaves the store unchanged. The download is
// attempted once; callers decide whether to retry.
//
// Overlapping refreshes are ordered by start time: a result is installed
// unless a refresh started later has already installed one, in which case
// ErrSuperseded is returned. A result whose ctx is done is discarded.
func (l *Loader) Refresh(ctx context.Context) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.refresh",
		trace.WithAttributes(attribute.String(tracing.AttrDatasetURL, l.url)),
	)
	defer span.End()

	gen := l.seq.Add(1)
	start := time.Now()

	res, err := l.load(ctx)
	monitoring.RecordIngestion(time.Since(start), len(res.Accepted), res.Rejected, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(core.CodeOf(err)))
		l.logger.Warn("dataset refresh failed", "url", l.url, "error", err)
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		l.logger.Debug("discarding dataset, caller went away", "error", err)
		return Result{}, err
	}
	if !l.install(gen, res) {
		l.logger.Debug("discarding dataset, a newer refresh is installed")
		return res, ErrSuperseded
	}

	span.SetAttributes(
		attribute.Int(tracing.AttrDatasetAccepted, len(res.Accepted)),
		attribute.Int(tracing.AttrDatasetRejected, res.Rejected),
	)
	span.SetStatus(codes.Ok, "")
	l.logger.Info("dataset loaded",
		"url", l.url,
		"accepted", len(res.Accepted),
		"rejected", res.Rejected,
		"duration", time.Since(start),
	)
	return res, nil
}

// install replaces the store unless a later refresh got there first.
func (l *Loader) install(gen uint64, res Result) bool {
	l.installMu.Lock()
	defer l.installMu.Unlock()
	if gen < l.installed {
		return false
	}
	l.installed = gen
	l.store.Replace(&Catalog{
		Records:  res.Accepted,
		Source:   l.url,
		LoadedAt: time.Now(),
	})
	return true
}

func (l *Loader) load(ctx context.Context) (Result, error) {
	text, err := l.fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	header, rows := records.Split(records.Parse(text))
	if header == nil {
		return Result{}, core.NewError(core.ErrIngestionEmpty, "dataset is empty").
			WithGuidance("The location list has no content. Try again later.")
	}

	res, err := Ingest(header, rows)
	if err != nil {
		var mc *MissingRequiredColumnsError
		if errors.As(err, &mc) {
			return Result{}, core.NewError(core.ErrMissingRequiredColumns, mc.Error()).
				WithGuidance("The location list is not in the expected format.").
				WithCause(err)
		}
		return Result{}, err
	}
	if len(res.Accepted) == 0 {
		return res, core.NewError(core.ErrIngestionEmpty,
			fmt.Sprintf("dataset has no valid locations (%d rows rejected)", res.Rejected)).
			WithGuidance("The location list has no usable entries. Try again later.")
	}
	return res, nil
}

func (l *Loader) fetch(ctx context.Context) (string, error) {
	if l.url == "" {
		return "", core.NewError(core.ErrIngestionNetwork, "no dataset URL configured")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, l.url, nil)
	}, l.client, core.SingleAttempt)
	if err != nil {
		var se *core.StatusError
		if errors.As(err, &se) {
			return "", core.NewError(core.ErrIngestionHTTPStatus,
				fmt.Sprintf("dataset server returned HTTP %d", se.StatusCode)).
				WithGuidance("The location list is unavailable right now. Try again later.").
				WithCause(err)
		}
		return "", core.NewError(core.ErrIngestionNetwork, "could not download the location list").
			WithGuidance("Check your internet connection and try again.").
			WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize))
	if err != nil {
		return "", core.NewError(core.ErrIngestionNetwork, "reading dataset body failed").
			WithGuidance("Check your internet connection and try again.").
			WithCause(err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", core.NewError(core.ErrIngestionEmpty, "dataset server returned an empty body").
			WithGuidance("The location list has no content. Try again later.")
	}
	return string(body), nil
}
