package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultUsedTokenRetention keeps used tokens around for audit before they
// are swept.
const DefaultUsedTokenRetention = 30 * 24 * time.Hour

// SweepResult reports how many tokens a sweep removed
type SweepResult struct {
	Expired int64 `json:"expired"`
	Used    int64 `json:"used"`
}

// Total is the number of removed tokens
func (r SweepResult) Total() int64 {
	return r.Expired + r.Used
}

// TokenSweeper deletes expired tokens and used tokens past the retention
// window.
type TokenSweeper struct {
	tokens    TokenStore
	retention time.Duration
	logger    Logger
	metrics   *Metrics
	now       func() time.Time
}

func NewTokenSweeper(tokens TokenStore) *TokenSweeper {
	return &TokenSweeper{
		tokens:    tokens,
		retention: DefaultUsedTokenRetention,
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (s *TokenSweeper) WithLogger(logger Logger) *TokenSweeper {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *TokenSweeper) WithMetrics(m *Metrics) *TokenSweeper {
	s.metrics = m
	return s
}

func (s *TokenSweeper) WithClock(now func() time.Time) *TokenSweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// WithRetention sets how long used tokens are kept, negative values are ignored
func (s *TokenSweeper) WithRetention(retention time.Duration) *TokenSweeper {
	if retention >= 0 {
		s.retention = retention
	}
	return s
}

// WithConfig applies the used token retention from cfg
func (s *TokenSweeper) WithConfig(cfg Config) *TokenSweeper {
	if cfg == nil {
		return s
	}
	return s.WithRetention(cfg.GetUsedTokenRetention())
}

// Sweep runs one cleanup pass
func (s *TokenSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	expired, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("token sweep failed", "reason", SweepExpired, "error", err)
		return result, errors.Wrap(err, errors.CategoryInternal, "failed to delete expired tokens")
	}
	result.Expired = expired
	s.metrics.RecordSwept(SweepExpired, expired)

	used, err := s.tokens.DeleteUsedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Error("token sweep failed", "reason", SweepUsed, "error", err)
		return result, errors.Wrap(err, errors.CategoryInternal, "failed to delete used tokens")
	}
	result.Used = used
	s.metrics.RecordSwept(SweepUsed, used)

	s.logger.Info("token sweep finished", "expired", result.Expired, "used", result.Used)
	return result, nil
}

// Run sweeps every interval until ctx is done
func (s *TokenSweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive", errors.CategoryBadInput)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduled token sweep failed", "error", err)
			}
		}
	}
}
