// Package access decides what a caller may do: how many results a query may
// return, whether the search is charged against a daily quota, and whether
// the bulk estimator is available.
package access

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/config"
)

// State is the access level derived from a caller's account fields.
type State string

const (
	Anonymous         State = "anonymous"
	FreeAuthenticated State = "free"
	ProActive         State = "pro"
)

// Caller is the resolved identity of a request. A nil Caller is anonymous.
type Caller struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	Tier               string `json:"tier"`
	SubscriptionStatus string `json:"subscription_status"`
}

// StateOf derives the access state. Only tier "pro" with an "active"
// subscription is ProActive; a lapsed pro account falls back to free.
func StateOf(c *Caller) State {
	if c == nil || c.ID == 0 {
		return Anonymous
	}
	if strings.EqualFold(c.Tier, "pro") && strings.EqualFold(c.SubscriptionStatus, "active") {
		return ProActive
	}
	return FreeAuthenticated
}

// Limits is the allowance of one access state. DailyQuota 0 means searches
// are not counted.
type Limits struct {
	State           State `json:"state"`
	DailyQuota      int   `json:"daily_search_quota"`
	ResultsPerQuery int   `json:"results_per_query"`
	Estimator       bool  `json:"estimator_access"`
}

// UsageCounter charges one search against a user's count for a UTC day.
// Charge returns the new count, or an error of kind QuotaExceeded when the
// count had already reached quota.
type UsageCounter interface {
	Charge(ctx context.Context, userID int64, day time.Time, quota int) (int, error)
	Count(ctx context.Context, userID int64, day time.Time) (int, error)
}

// Decision is the outcome of CheckAccess.
type Decision struct {
	Allowed   bool `json:"allowed"`
	ResultCap int  `json:"result_cap"`
	IsPro     bool `json:"is_pro"`
	// Remaining is nil when the caller's searches are not counted.
	Remaining *int `json:"remaining"`
}

// Gate applies configured tier limits and charges the usage counter.
type Gate struct {
	limits  map[State]Limits
	counter UsageCounter
	now     func() time.Time
}

// NewGate creates a Gate from configured limits.
func NewGate(cfg config.AccessConfig, counter UsageCounter) *Gate {
	return &Gate{
		limits: map[State]Limits{
			Anonymous:         fromConfig(Anonymous, cfg.Anonymous),
			FreeAuthenticated: fromConfig(FreeAuthenticated, cfg.Free),
			ProActive:         fromConfig(ProActive, cfg.Pro),
		},
		counter: counter,
		now:     time.Now,
	}
}

func fromConfig(s State, t config.TierLimits) Limits {
	return Limits{
		State:           s,
		DailyQuota:      t.DailyQuota,
		ResultsPerQuery: t.ResultsPerQuery,
		Estimator:       t.Estimator,
	}
}

// Limits returns the allowance for c.
func (g *Gate) Limits(c *Caller) Limits {
	return g.limits[StateOf(c)]
}

// Today is the usage day for the current instant.
func (g *Gate) Today() time.Time {
	return Day(g.now())
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckAccess authorizes one search. Counted callers are charged before any
// query runs; a caller at quota gets a QuotaExceeded error and no charge.
func (g *Gate) CheckAccess(ctx context.Context, c *Caller) (Decision, error) {
	lim := g.Limits(c)
	d := Decision{
		Allowed:   true,
		ResultCap: lim.ResultsPerQuery,
		IsPro:     lim.State == ProActive,
	}
	if lim.DailyQuota <= 0 || c == nil || c.ID == 0 {
		return d, nil
	}

	n, err := g.counter.Charge(ctx, c.ID, g.Today(), lim.DailyQuota)
	if err != nil {
		if apperr.Is(err, apperr.KindQuotaExceeded) {
			zap.L().Info("access: daily quota reached",
				zap.Int64("user_id", c.ID),
				zap.Int("quota", lim.DailyQuota),
			)
			return Decision{ResultCap: lim.ResultsPerQuery}, err
		}
		return Decision{}, eris.Wrapf(err, "access: charge user %d", c.ID)
	}

	remaining := max(lim.DailyQuota-n, 0)
	d.Remaining = &remaining
	return d, nil
}

// Remaining reports the caller's unused searches today without charging.
// It returns nil when the caller is not counted.
func (g *Gate) Remaining(ctx context.Context, c *Caller) (*int, error) {
	lim := g.Limits(c)
	if lim.DailyQuota <= 0 || c == nil || c.ID == 0 {
		return nil, nil
	}
	n, err := g.counter.Count(ctx, c.ID, g.Today())
	if err != nil {
		return nil, eris.Wrapf(err, "access: count usage for user %d", c.ID)
	}
	remaining := max(lim.DailyQuota-n, 0)
	return &remaining, nil
}

// RequireEstimator returns AccessDenied unless c may use bulk pricing.
func (g *Gate) RequireEstimator(c *Caller) error {
	if !g.Limits(c).Estimator {
		return apperr.AccessDenied("bulk pricing requires an active Pro subscription")
	}
	return nil
}

// Cap bounds a requested list size by the caller's per-query limit.
func (d Decision) Cap(requested int) int {
	if d.ResultCap <= 0 {
		return requested
	}
	if requested <= 0 || requested > d.ResultCap {
		return d.ResultCap
	}
	return requested
}
