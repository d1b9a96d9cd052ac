package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/models"
)

const DefaultNewsRefreshInterval = time.Hour

// Dashboard serves the legal news feed, cached for a fixed time.
type Dashboard struct {
	gw        Gateway
	runner    Runner
	workspace string
	log       logrus.FieldLogger
	ttl       time.Duration
	now       func() time.Time

	mu        sync.Mutex
	items     []models.LegalNewsItem
	fetchedAt time.Time
}

func newDashboard(gw Gateway, o options) *Dashboard {
	return &Dashboard{
		gw:        gw,
		runner:    o.runner,
		workspace: o.workspace,
		log:       o.log,
		ttl:       o.newsTTL,
		now:       o.now,
	}
}

// News returns the cached feed, fetching it when missing or expired.
func (d *Dashboard) News(ctx context.Context) ([]models.LegalNewsItem, error) {
	d.mu.Lock()
	if d.items != nil && d.now().Sub(d.fetchedAt) < d.ttl {
		items := copyNews(d.items)
		d.mu.Unlock()
		return items, nil
	}
	d.mu.Unlock()
	return d.Refresh(ctx)
}

// Refresh fetches the feed regardless of the cache. An empty answer is cached
// like any other.
func (d *Dashboard) Refresh(ctx context.Context) ([]models.LegalNewsItem, error) {
	var items []models.LegalNewsItem
	err := d.runner.Do(ctx, d.workspace, "news", func(ctx context.Context) error {
		var err error
		items, err = d.gw.FetchLegalNews(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.LegalNewsItem{}
	}
	d.mu.Lock()
	d.items = items
	d.fetchedAt = d.now()
	d.mu.Unlock()
	return copyNews(items), nil
}

func copyNews(in []models.LegalNewsItem) []models.LegalNewsItem {
	out := make([]models.LegalNewsItem, len(in))
	copy(out, in)
	return out
}

// StartRefresher refreshes the feed every interval until ctx is done.
func (d *Dashboard) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultNewsRefreshInterval
	}
	go d.refreshLoop(ctx, interval)
}

func (d *Dashboard) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Refresh(ctx); err != nil {
				d.log.WithError(err).Warn("refresh legal news failed")
			}
		}
	}
}
