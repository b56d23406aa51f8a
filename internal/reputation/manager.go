package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panini-fs/ipcore/internal/audit"
)

// Recorder is the slice of the audit manager this package needs for
// governance events.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (*audit.Event, error)
}

// Manager tracks reputation scores and runs governance.
type Manager struct {
	repo     Repository
	recorder Recorder
	logger   *slog.Logger
	metrics  *Metrics
	timeNow  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder attaches an audit recorder for governance events.
func WithRecorder(recorder Recorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.timeNow = now
		}
	}
}

// NewManager creates a reputation manager backed by repo.
func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		logger:  slog.Default(),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeReputation creates a zero score for a new actor.
func (m *Manager) InitializeReputation(ctx context.Context, actor string) (*Score, error) {
	if _, err := m.repo.GetScore(actor); err == nil {
		return nil, ErrAlreadyInitialized
	} else if err != ErrScoreNotFound {
		return nil, err
	}

	now := m.timeNow().UTC()
	score := &Score{
		Actor:      actor,
		Level:      LevelNewcomer,
		LastAction: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.repo.PutScore(score); err != nil {
		return nil, fmt.Errorf("storing score: %w", err)
	}
	if m.metrics != nil {
		m.metrics.SetLevel(actor, LevelNewcomer)
	}
	return copyScore(score), nil
}

// RecordAction applies an action's base points, scaled by the quality
// multiplier, to an actor's score. The score never drops below zero.
// Level and badges are recomputed after each action.
func (m *Manager) RecordAction(ctx context.Context, actor string, action ActionType, qualityMultiplier float64) (*Score, error) {
	points, ok := ActionPoints[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, action)
	}
	if qualityMultiplier <= 0 {
		qualityMultiplier = 1.0
	}

	score, err := m.repo.GetScore(actor)
	if err != nil {
		return nil, err
	}

	now := m.timeNow().UTC()
	score.TotalScore += points * qualityMultiplier
	if score.TotalScore < 0 {
		score.TotalScore = 0
	}
	if points > 0 {
		score.PositiveActions++
	} else if points < 0 {
		score.NegativeActions++
	}
	score.Level = LevelFor(score.TotalScore)
	score.LastAction = now
	score.UpdatedAt = now
	m.awardBadges(score)

	if err := m.repo.PutScore(score); err != nil {
		return nil, fmt.Errorf("storing score: %w", err)
	}
	if m.metrics != nil {
		m.metrics.IncActions(action)
		m.metrics.SetLevel(actor, score.Level)
	}
	m.logger.Debug("reputation action recorded",
		slog.String("actor", actor),
		slog.String("action", string(action)),
		slog.Float64("total_score", score.TotalScore),
		slog.String("level", string(score.Level)))
	return copyScore(score), nil
}

func (m *Manager) awardBadges(score *Score) {
	if score.PositiveActions >= 1 && !score.HasBadge(BadgeFirstContribution) {
		score.Badges = append(score.Badges, BadgeFirstContribution)
	}
	if score.PositiveActions >= 10 && !score.HasBadge(BadgeTenContributions) {
		score.Badges = append(score.Badges, BadgeTenContributions)
	}
	if (score.Level == LevelTrusted || score.Level == LevelExpert || score.Level == LevelAuthority) &&
		!score.HasBadge(BadgeTrustedRank) {
		score.Badges = append(score.Badges, BadgeTrustedRank)
	}
}

// ApplyDecay reduces an actor's score by DecayRatePerMonth for every full
// month since their last action. The score never drops below zero, and the
// decay does not count as activity.
func (m *Manager) ApplyDecay(ctx context.Context, actor string) (*Score, error) {
	score, err := m.repo.GetScore(actor)
	if err != nil {
		return nil, err
	}

	now := m.timeNow().UTC()
	months := fullMonthsBetween(score.LastAction, now)
	if months == 0 {
		return score, nil
	}

	for i := 0; i < months; i++ {
		score.TotalScore *= 1 - DecayRatePerMonth
	}
	if score.TotalScore < 0 {
		score.TotalScore = 0
	}
	score.Level = LevelFor(score.TotalScore)
	score.UpdatedAt = now

	if err := m.repo.PutScore(score); err != nil {
		return nil, fmt.Errorf("storing score: %w", err)
	}
	if m.metrics != nil {
		m.metrics.SetLevel(actor, score.Level)
	}
	return copyScore(score), nil
}

// GetReputation returns an actor's score.
func (m *Manager) GetReputation(ctx context.Context, actor string) (*Score, error) {
	return m.repo.GetScore(actor)
}

// ComputeTrustMetric derives a four-dimension trust profile from an actor's
// reputation. Authenticity reflects the positive-to-negative action ratio,
// reliability the recency of activity, competence the score band, and
// benevolence the share of review and endorsement activity approximated by
// badge progress.
func (m *Manager) ComputeTrustMetric(ctx context.Context, actor string) (*TrustMetric, error) {
	score, err := m.repo.GetScore(actor)
	if err != nil {
		return nil, err
	}

	total := score.PositiveActions + score.NegativeActions
	authenticity := 0.5
	if total > 0 {
		authenticity = float64(score.PositiveActions) / float64(total)
	}

	monthsIdle := fullMonthsBetween(score.LastAction, m.timeNow().UTC())
	reliability := 1.0 - 0.25*float64(monthsIdle)
	if reliability < 0 {
		reliability = 0
	}

	competence := score.TotalScore / 1000
	if competence > 1 {
		competence = 1
	}

	benevolence := float64(len(score.Badges)) / 4
	if benevolence > 1 {
		benevolence = 1
	}

	return &TrustMetric{
		Actor:        actor,
		Authenticity: authenticity,
		Reliability:  reliability,
		Competence:   competence,
		Benevolence:  benevolence,
		Overall:      (authenticity + reliability + competence + benevolence) / 4,
	}, nil
}

// fullMonthsBetween counts whole months elapsed from a to b.
func fullMonthsBetween(a, b time.Time) int {
	if !a.Before(b) {
		return 0
	}
	months := 0
	for !a.AddDate(0, months+1, 0).After(b) {
		months++
	}
	return months
}
