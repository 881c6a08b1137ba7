// Package account reads callers from the users and sessions tables and keeps
// the per-day search counters used by the access gate. It never writes
// account or subscription fields.
package account

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/db"
)

// Service resolves sessions and counts searches.
type Service struct {
	q   db.Querier
	now func() time.Time
}

var _ access.UsageCounter = (*Service)(nil)

// New creates a Service reading through q.
func New(q db.Querier) *Service {
	return &Service{q: q, now: time.Now}
}

// Resolve maps a session token to its caller. An empty, unknown or expired
// token resolves to nil, which the gate treats as anonymous.
func (s *Service) Resolve(ctx context.Context, token string) (*access.Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	b := db.NewBuilder(s.q.Dialect())
	query := `SELECT u.id, u.email, u.tier, u.subscription_status
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ` + b.Arg(token) + ` AND s.expires_at > ` + b.Arg(s.timeArg(s.now()))

	var c access.Caller
	err := s.q.QueryRow(ctx, query, b.Args()...).Scan(&c.ID, &c.Email, &c.Tier, &c.SubscriptionStatus)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "account: resolve session")
	}
	return &c, nil
}

// timeArg binds an instant the way each backend stores expires_at: a
// TIMESTAMPTZ in Postgres, RFC 3339 UTC text in SQLite.
func (s *Service) timeArg(t time.Time) any {
	if s.q.Dialect() == db.SQLite {
		return t.UTC().Format(time.RFC3339)
	}
	return t.UTC()
}

func usageDate(day time.Time) string {
	return access.Day(day).Format(time.DateOnly)
}

// Charge adds one search for userID on day in a single statement. The
// increment only happens while the count is below quota; when it is not, no
// row comes back and the caller is over quota.
func (s *Service) Charge(ctx context.Context, userID int64, day time.Time, quota int) (int, error) {
	b := db.NewBuilder(s.q.Dialect())
	query := `INSERT INTO search_usage (user_id, usage_date, search_count)
		VALUES (` + b.Arg(userID) + `, ` + b.Arg(usageDate(day)) + `, 1)
		ON CONFLICT (user_id, usage_date) DO UPDATE
		SET search_count = search_usage.search_count + 1
		WHERE search_usage.search_count < ` + b.Arg(quota) + `
		RETURNING search_count`

	var n int
	if err := s.q.QueryRow(ctx, query, b.Args()...).Scan(&n); err != nil {
		if db.IsNoRows(err) {
			return 0, apperr.Newf(apperr.KindQuotaExceeded,
				"daily search limit of %d reached; upgrade to Pro for unlimited searches", quota)
		}
		return 0, eris.Wrapf(err, "account: charge search for user %d", userID)
	}
	return n, nil
}

// Count returns the searches userID has made on day.
func (s *Service) Count(ctx context.Context, userID int64, day time.Time) (int, error) {
	b := db.NewBuilder(s.q.Dialect())
	b.Eq("user_id", userID).Eq("usage_date", usageDate(day))

	var n int
	err := s.q.QueryRow(ctx, `SELECT search_count FROM search_usage`+b.Clause(), b.Args()...).Scan(&n)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "account: count searches for user %d", userID)
	}
	return n, nil
}

// PruneUsage deletes counters older than retentionDays and returns how many
// rows were removed.
func (s *Service) PruneUsage(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, apperr.Validation("retention must be at least one day")
	}
	cutoff := usageDate(s.now().AddDate(0, 0, -retentionDays))

	b := db.NewBuilder(s.q.Dialect())
	n, err := s.q.Exec(ctx, `DELETE FROM search_usage WHERE usage_date < `+b.Arg(cutoff), b.Args()...)
	if err != nil {
		return 0, eris.Wrap(err, "account: prune usage")
	}

	zap.L().Info("account: pruned search usage",
		zap.String("before", cutoff),
		zap.Int64("rows", n),
	)
	return n, nil
}
