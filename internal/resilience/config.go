package resilience

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/config"
)

// FromConfig builds the startup retry policy and the store breaker settings.
func FromConfig(cfg config.ResilienceConfig, driver string) (Policy, BreakerConfig) {
	p := DefaultPolicy()
	if cfg.ConnectAttempts > 0 {
		p.Attempts = cfg.ConnectAttempts
	}
	if cfg.ConnectBackoffMS > 0 {
		p.Initial = time.Duration(cfg.ConnectBackoffMS) * time.Millisecond
	}
	p.OnRetry = LogRetry(driver, "connect")

	b := DefaultBreakerConfig()
	if cfg.BreakerThreshold > 0 {
		b.Threshold = cfg.BreakerThreshold
	}
	if cfg.BreakerResetSecs > 0 {
		b.Cooldown = time.Duration(cfg.BreakerResetSecs) * time.Second
	}
	b.OnStateChange = func(from, to State) {
		zap.L().Warn("store circuit breaker state change",
			zap.String("driver", driver),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return p, b
}
