package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/theranorm/theranorm/pkg/store"
)

// Checker periodically probes every registered import source with a HEAD
// request and records availability, so stale source URLs surface before the
// next scheduled ingestion rather than during it.
type Checker struct {
	store    *store.Store
	logger   *slog.Logger
	interval time.Duration
	limiter  *rate.Limiter
	client   *http.Client
}

// NewChecker creates a Checker that probes source URLs every interval,
// pacing individual probes to at most one per second.
func NewChecker(st *store.Store, logger *slog.Logger, interval time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		store:    st,
		logger:   logger,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start runs an immediate check then repeats every interval until ctx is
// cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll probes every import source URL and persists the results.
func (c *Checker) CheckAll(ctx context.Context) {
	sources, err := c.store.ListImportSources(ctx)
	if err != nil {
		c.logger.Error("source check: list failed", "error", err)
		return
	}
	if len(sources) == 0 {
		return
	}

	var ok, failed int
	for _, src := range sources {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		status, checkErr := c.checkOne(ctx, src.SourceURL)
		errMsg := ""
		if checkErr != nil {
			errMsg = checkErr.Error()
		}

		if err := c.store.UpdateCheck(ctx, src.IngestorID, status, errMsg); err != nil {
			c.logger.Error("source check: update failed", "ingestor", src.IngestorID, "error", err)
		}

		if status >= 200 && status < 400 {
			ok++
		} else {
			failed++
			c.logger.Warn("source unreachable",
				"ingestor", src.IngestorID,
				"url", src.SourceURL,
				"status", status,
				"error", errMsg,
			)
		}
	}

	c.logger.Info("source check complete", "total", ok+failed, "ok", ok, "failed", failed)
}

// checkOne performs a single HEAD request and returns the HTTP status code.
// On network error, status is 0.
func (c *Checker) checkOne(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
