package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/config"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

// QuotaWindow is the rolling period bounding free-plan searches.
const QuotaWindow = 30 * 24 * time.Hour

// QuotaStore persists per-session counters. The encoding and transport
// (cookie, Redis, in-process map) are the store's business; expiry semantics
// belong to the gate.
type QuotaStore interface {
	Get(ctx context.Context, sessionID string) (*models.SessionQuota, error)
	Put(ctx context.Context, sessionID string, quota models.SessionQuota) error
}

// QuotaExceededError is fatal to the requested search and carries the
// remaining-window information for the caller.
type QuotaExceededError struct {
	SearchesUsed  int
	Limit         int
	WindowResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d searches used, window resets %s",
		e.SearchesUsed, e.Limit, e.WindowResetAt.Format(time.RFC3339))
}

// QuotaGate enforces the freemium limits before any retrieval work starts.
// Check-then-increment is one atomic step so two concurrent requests from
// the same session cannot both pass on a stale counter.
type QuotaGate struct {
	store  QuotaStore
	cfg    *config.Config
	logger *utils.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewQuotaGate creates a gate over the given store.
func NewQuotaGate(store QuotaStore, cfg *config.Config, logger *utils.Logger) *QuotaGate {
	return &QuotaGate{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// CheckAndConsume validates the session against its plan and, for free
// sessions, consumes one search from the rolling 30-day window. A matching
// premium code grants premium limits without touching the counter.
func (g *QuotaGate) CheckAndConsume(ctx context.Context, sessionID, planCode string) (models.PlanLimits, error) {
	if g.cfg.IsPremiumCode(planCode) {
		g.logger.Debug("[quota] session %s: premium code accepted", sessionID)
		return models.PlanLimits{
			Plan:         "premium",
			PagesPerYear: g.cfg.PremiumPagesPerYear,
			ItemsPerPage: g.cfg.PremiumItemsPerPage,
		}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	quota, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return models.PlanLimits{}, fmt.Errorf("quota: load session %s: %w", sessionID, err)
	}
	if quota == nil {
		quota = &models.SessionQuota{}
	}

	now := g.now()
	windowStart := time.Unix(quota.WindowStart, 0)
	if quota.SearchesUsed > 0 && now.Sub(windowStart) > QuotaWindow {
		quota.SearchesUsed = 0
	}

	if quota.SearchesUsed >= g.cfg.FreeLimitSearches {
		return models.PlanLimits{}, &QuotaExceededError{
			SearchesUsed:  quota.SearchesUsed,
			Limit:         g.cfg.FreeLimitSearches,
			WindowResetAt: windowStart.Add(QuotaWindow),
		}
	}

	if quota.SearchesUsed == 0 {
		quota.WindowStart = now.Unix()
	}
	quota.SearchesUsed++

	if err := g.store.Put(ctx, sessionID, *quota); err != nil {
		return models.PlanLimits{}, fmt.Errorf("quota: persist session %s: %w", sessionID, err)
	}

	g.logger.Debug("[quota] session %s: %d/%d searches used",
		sessionID, quota.SearchesUsed, g.cfg.FreeLimitSearches)

	return models.PlanLimits{
		Plan:         "free",
		PagesPerYear: g.cfg.FreePagesPerYear,
		ItemsPerPage: g.cfg.FreeItemsPerPage,
	}, nil
}
