// Package reputation tracks actor reputation scores and runs the governance
// process built on top of them: proposals, votes under several consensus
// models, and versioned governance policies.
package reputation

import (
	"errors"
	"fmt"
	"time"
)

// ActionType classifies a reputation-affecting action.
type ActionType string

// Action types.
const (
	ActionContentContribution ActionType = "content_contribution"
	ActionQualityReview       ActionType = "quality_review"
	ActionDerivationCreated   ActionType = "derivation_created"
	ActionCitationReceived    ActionType = "citation_received"
	ActionExpertEndorsement   ActionType = "expert_endorsement"
	ActionParticipation       ActionType = "participation"
	ActionSpam                ActionType = "spam"
	ActionLicenseViolation    ActionType = "license_violation"
	ActionPlagiarism          ActionType = "plagiarism_detected"
)

// ActionPoints maps each action type to its base point value. Positive
// actions range +3..+15, negative −20..−100, and participation is the
// neutral +1.
var ActionPoints = map[ActionType]float64{
	ActionContentContribution: 10,
	ActionQualityReview:       5,
	ActionDerivationCreated:   8,
	ActionCitationReceived:    3,
	ActionExpertEndorsement:   15,
	ActionParticipation:       1,
	ActionSpam:                -20,
	ActionLicenseViolation:    -50,
	ActionPlagiarism:          -100,
}

// Level is a score band.
type Level string

// Levels, in ascending order.
const (
	LevelNewcomer    Level = "newcomer"
	LevelContributor Level = "contributor"
	LevelTrusted     Level = "trusted"
	LevelExpert      Level = "expert"
	LevelAuthority   Level = "authority"
)

// LevelFor returns the level for a score.
func LevelFor(score float64) Level {
	switch {
	case score < 50:
		return LevelNewcomer
	case score < 200:
		return LevelContributor
	case score < 500:
		return LevelTrusted
	case score < 1000:
		return LevelExpert
	default:
		return LevelAuthority
	}
}

// Badge names.
const (
	BadgeFirstContribution     = "first_contribution"
	BadgeTenContributions      = "ten_contributions"
	BadgeTrustedRank           = "trusted_rank"
	BadgeGovernanceParticipant = "governance_participant"
)

// DecayRatePerMonth is the fraction of score lost per full month of
// inactivity.
const DecayRatePerMonth = 0.05

// Score is an actor's cumulative reputation.
type Score struct {
	Actor           string    `json:"actor"`
	TotalScore      float64   `json:"total_score"`
	Level           Level     `json:"level"`
	PositiveActions int       `json:"positive_actions"`
	NegativeActions int       `json:"negative_actions"`
	Badges          []string  `json:"badges"`
	LastAction      time.Time `json:"last_action"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasBadge reports whether the actor holds a badge.
func (s *Score) HasBadge(badge string) bool {
	for _, b := range s.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// ProposalType classifies a governance proposal.
type ProposalType string

// Proposal types.
const (
	ProposalPolicyChange       ProposalType = "policy_change"
	ProposalUserModeration     ProposalType = "user_moderation"
	ProposalContentValidation  ProposalType = "content_validation"
	ProposalResourceAllocation ProposalType = "resource_allocation"
	ProposalSystemUpgrade      ProposalType = "system_upgrade"
)

// ConsensusModel determines how votes are weighed and tallied.
type ConsensusModel string

// Consensus models.
const (
	ConsensusSimpleMajority ConsensusModel = "simple_majority"
	ConsensusSupermajority  ConsensusModel = "supermajority"
	ConsensusUnanimous      ConsensusModel = "unanimous"
	ConsensusWeighted       ConsensusModel = "weighted"
	ConsensusQuadratic      ConsensusModel = "quadratic"
)

// ProposalStatus is a proposal's lifecycle state.
type ProposalStatus string

// Proposal statuses.
const (
	StatusDraft       ProposalStatus = "draft"
	StatusActive      ProposalStatus = "active"
	StatusApproved    ProposalStatus = "approved"
	StatusRejected    ProposalStatus = "rejected"
	StatusExpired     ProposalStatus = "expired"
	StatusImplemented ProposalStatus = "implemented"
)

// Proposal is a governance item put to a vote.
type Proposal struct {
	ID             string         `json:"id"`
	Proposer       string         `json:"proposer"`
	Type           ProposalType   `json:"type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ConsensusModel ConsensusModel `json:"consensus_model"`
	Status         ProposalStatus `json:"status"`
	Quorum         int            `json:"quorum"`
	CreatedAt      time.Time      `json:"created_at"`
	VotingEndsAt   time.Time      `json:"voting_ends_at"`
	FinalizedAt    time.Time      `json:"finalized_at,omitempty"`
}

// VoteType is the direction of a vote.
type VoteType string

// Vote types.
const (
	VoteApprove  VoteType = "approve"
	VoteReject   VoteType = "reject"
	VoteAbstain  VoteType = "abstain"
	VoteDelegate VoteType = "delegate"
)

// Vote is one voter's ballot on a proposal. Weight is 1.0 except under the
// weighted model, where it derives from the voter's reputation. A delegate
// vote adopts the direction of DelegateTo's own ballot, one hop only.
type Vote struct {
	ProposalID string    `json:"proposal_id"`
	Voter      string    `json:"voter"`
	Type       VoteType  `json:"type"`
	Weight     float64   `json:"weight"`
	DelegateTo string    `json:"delegate_to,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	CastAt     time.Time `json:"cast_at"`
}

// MaxVoteWeight caps reputation-derived vote weight under the weighted
// model.
const MaxVoteWeight = 5.0

// GovernancePolicy is a versioned rule set created when a proposal is
// implemented.
type GovernancePolicy struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	ProposalID string    `json:"proposal_id"`
	Title      string    `json:"title"`
	Rules      string    `json:"rules"`
	CreatedAt  time.Time `json:"created_at"`
}

// TrustMetric grades an actor across four dimensions in [0,1]; Overall is
// their mean.
type TrustMetric struct {
	Actor        string  `json:"actor"`
	Authenticity float64 `json:"authenticity"`
	Reliability  float64 `json:"reliability"`
	Competence   float64 `json:"competence"`
	Benevolence  float64 `json:"benevolence"`
	Overall      float64 `json:"overall"`
}

// Sentinel errors.
var (
	ErrScoreNotFound        = errors.New("reputation score not found")
	ErrAlreadyInitialized   = errors.New("reputation already initialized")
	ErrUnknownActionType    = errors.New("unknown action type")
	ErrProposalNotFound     = errors.New("proposal not found")
	ErrProposalNotActive    = errors.New("proposal is not active")
	ErrVotingClosed         = errors.New("voting window has closed")
	ErrAlreadyVoted         = errors.New("voter has already cast a vote on this proposal")
	ErrInvalidVoteType      = errors.New("invalid vote type")
	ErrMissingDelegate      = errors.New("delegate vote requires a delegate target")
	ErrSelfDelegation       = errors.New("cannot delegate a vote to oneself")
	ErrDelegationChain      = errors.New("delegate target has itself delegated")
	ErrProposalNotApproved  = errors.New("proposal is not approved")
	ErrInvalidVotingWindow  = errors.New("voting window must be a positive number of days")
	ErrInvalidQuorum        = errors.New("quorum must be positive")
	ErrUnknownConsensusType = errors.New("unknown consensus model")
)

// VotingNotClosedError reports a finalize attempt before the window ends or
// before quorum is reached.
type VotingNotClosedError struct {
	ProposalID string
	Reason     string
}

func (e *VotingNotClosedError) Error() string {
	return fmt.Sprintf("proposal %s cannot be finalized: %s", e.ProposalID, e.Reason)
}
