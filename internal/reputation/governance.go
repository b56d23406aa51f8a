package reputation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/panini-fs/ipcore/internal/audit"
)

// CreateProposal opens a governance proposal for voting. The voting window
// runs votingDays from creation; quorum is the minimum number of ballots
// (abstentions included) required before the proposal can be finalized.
func (m *Manager) CreateProposal(ctx context.Context, proposer string, proposalType ProposalType, title, description string, model ConsensusModel, votingDays, quorum int) (*Proposal, error) {
	if votingDays <= 0 {
		return nil, ErrInvalidVotingWindow
	}
	if quorum <= 0 {
		return nil, ErrInvalidQuorum
	}
	switch model {
	case ConsensusSimpleMajority, ConsensusSupermajority, ConsensusUnanimous, ConsensusWeighted, ConsensusQuadratic:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConsensusType, model)
	}

	now := m.timeNow().UTC()
	proposal := &Proposal{
		ID:             uuid.New().String(),
		Proposer:       proposer,
		Type:           proposalType,
		Title:          title,
		Description:    description,
		ConsensusModel: model,
		Status:         StatusActive,
		Quorum:         quorum,
		CreatedAt:      now,
		VotingEndsAt:   now.AddDate(0, 0, votingDays),
	}
	if err := m.repo.PutProposal(proposal); err != nil {
		return nil, fmt.Errorf("storing proposal: %w", err)
	}

	m.grantGovernanceBadge(proposer)
	if m.metrics != nil {
		m.metrics.IncProposals(StatusActive)
	}
	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventProposalCreated,
			Actor:   proposer,
			Action:  "create_proposal",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{
				"proposal_id": proposal.ID,
				"type":        string(proposalType),
				"model":       string(model),
			},
		}); err != nil {
			return nil, fmt.Errorf("recording proposal creation: %w", err)
		}
	}
	return proposal, nil
}

// CastVote records a ballot. Weight is 1.0 for every model except
// weighted, where it is 1.0 + reputation/1000 capped at MaxVoteWeight.
// The quadratic model also uses unit weights: each voter holds a single
// vote, so the quadratic cost of one vote is one credit. Delegate votes
// name a target whose ballot direction they adopt at finalization, one hop
// only; delegating to a voter who has already delegated is rejected.
func (m *Manager) CastVote(ctx context.Context, proposalID, voter string, voteType VoteType, delegateTo, rationale string) (*Vote, error) {
	proposal, err := m.repo.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != StatusActive {
		return nil, ErrProposalNotActive
	}

	now := m.timeNow().UTC()
	if !now.Before(proposal.VotingEndsAt) {
		return nil, ErrVotingClosed
	}

	switch voteType {
	case VoteApprove, VoteReject, VoteAbstain:
		if delegateTo != "" {
			return nil, fmt.Errorf("%w: delegate target on a %s vote", ErrInvalidVoteType, voteType)
		}
	case VoteDelegate:
		if delegateTo == "" {
			return nil, ErrMissingDelegate
		}
		if delegateTo == voter {
			return nil, ErrSelfDelegation
		}
		existing, err := m.repo.VotesByProposal(proposalID)
		if err != nil {
			return nil, err
		}
		for _, v := range existing {
			if v.Voter == delegateTo && v.Type == VoteDelegate {
				return nil, ErrDelegationChain
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidVoteType, voteType)
	}

	weight := 1.0
	if proposal.ConsensusModel == ConsensusWeighted {
		weight = m.voteWeight(voter)
	}

	vote := &Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Type:       voteType,
		Weight:     weight,
		DelegateTo: delegateTo,
		Rationale:  rationale,
		CastAt:     now,
	}
	if err := m.repo.PutVote(vote); err != nil {
		return nil, err
	}

	m.grantGovernanceBadge(voter)
	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventVoteCast,
			Actor:   voter,
			Action:  "cast_vote",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{
				"proposal_id": proposalID,
				"vote_type":   string(voteType),
			},
		}); err != nil {
			return nil, fmt.Errorf("recording vote: %w", err)
		}
	}
	return vote, nil
}

// voteWeight is the weighted-model ballot weight for an actor. Actors with
// no reputation vote at the base weight.
func (m *Manager) voteWeight(actor string) float64 {
	score, err := m.repo.GetScore(actor)
	if err != nil {
		return 1.0
	}
	weight := 1.0 + score.TotalScore/1000
	if weight > MaxVoteWeight {
		weight = MaxVoteWeight
	}
	return weight
}

func (m *Manager) grantGovernanceBadge(actor string) {
	score, err := m.repo.GetScore(actor)
	if err != nil {
		return
	}
	if score.HasBadge(BadgeGovernanceParticipant) {
		return
	}
	score.Badges = append(score.Badges, BadgeGovernanceParticipant)
	if err := m.repo.PutScore(score); err != nil {
		m.logger.Warn("failed to store governance badge",
			slog.String("actor", actor),
			slog.String("error", err.Error()))
	}
}

// FinalizeProposal tallies votes after the voting window closes. It fails
// with VotingNotClosedError while the window is open or quorum is unmet.
// Abstentions and unresolvable delegations count toward quorum but not
// toward the approval base.
func (m *Manager) FinalizeProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	proposal, err := m.repo.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != StatusActive {
		return nil, ErrProposalNotActive
	}

	now := m.timeNow().UTC()
	if now.Before(proposal.VotingEndsAt) {
		return nil, &VotingNotClosedError{ProposalID: proposalID, Reason: "voting window still open"}
	}

	votes, err := m.repo.VotesByProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if len(votes) < proposal.Quorum {
		return nil, &VotingNotClosedError{
			ProposalID: proposalID,
			Reason:     fmt.Sprintf("quorum not met: %d of %d votes", len(votes), proposal.Quorum),
		}
	}

	approved := tally(proposal.ConsensusModel, votes)
	if approved {
		proposal.Status = StatusApproved
	} else {
		proposal.Status = StatusRejected
	}
	proposal.FinalizedAt = now
	if err := m.repo.PutProposal(proposal); err != nil {
		return nil, fmt.Errorf("storing finalized proposal: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IncProposals(proposal.Status)
	}
	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventProposalFinalized,
			Actor:   proposal.Proposer,
			Action:  "finalize_proposal",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{
				"proposal_id": proposalID,
				"status":      string(proposal.Status),
			},
		}); err != nil {
			return nil, fmt.Errorf("recording finalization: %w", err)
		}
	}
	return proposal, nil
}

// tally computes approval for a vote set under a consensus model.
func tally(model ConsensusModel, votes []*Vote) bool {
	byVoter := make(map[string]*Vote, len(votes))
	for _, v := range votes {
		byVoter[v.Voter] = v
	}

	// Resolve delegate ballots one hop. A delegation to an absent,
	// abstaining, or delegating target counts as an abstention.
	resolve := func(v *Vote) (VoteType, float64) {
		if v.Type != VoteDelegate {
			return v.Type, v.Weight
		}
		target, ok := byVoter[v.DelegateTo]
		if !ok || target.Type == VoteDelegate || target.Type == VoteAbstain {
			return VoteAbstain, v.Weight
		}
		return target.Type, v.Weight
	}

	var approveWeight, rejectWeight float64
	var approveCount, rejectCount int
	for _, v := range votes {
		direction, weight := resolve(v)
		switch direction {
		case VoteApprove:
			approveWeight += weight
			approveCount++
		case VoteReject:
			rejectWeight += weight
			rejectCount++
		}
	}

	decided := approveCount + rejectCount
	if decided == 0 {
		return false
	}

	switch model {
	case ConsensusSimpleMajority, ConsensusQuadratic:
		return float64(approveCount)/float64(decided) > 0.5
	case ConsensusSupermajority:
		return float64(approveCount)/float64(decided) > 2.0/3.0
	case ConsensusUnanimous:
		return rejectCount == 0
	case ConsensusWeighted:
		return approveWeight/(approveWeight+rejectWeight) > 0.5
	default:
		return false
	}
}

// ImplementProposal converts an approved proposal into the next version of
// the governance policy.
func (m *Manager) ImplementProposal(ctx context.Context, proposalID, rules string) (*GovernancePolicy, error) {
	proposal, err := m.repo.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != StatusApproved {
		return nil, ErrProposalNotApproved
	}

	latest, err := m.repo.LatestPolicyVersion()
	if err != nil {
		return nil, err
	}

	now := m.timeNow().UTC()
	policy := &GovernancePolicy{
		ID:         uuid.New().String(),
		Version:    latest + 1,
		ProposalID: proposalID,
		Title:      proposal.Title,
		Rules:      rules,
		CreatedAt:  now,
	}
	if err := m.repo.PutPolicy(policy); err != nil {
		return nil, fmt.Errorf("storing policy: %w", err)
	}

	proposal.Status = StatusImplemented
	if err := m.repo.PutProposal(proposal); err != nil {
		return nil, fmt.Errorf("storing implemented proposal: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IncProposals(StatusImplemented)
	}
	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventPolicyUpdated,
			Actor:   proposal.Proposer,
			Action:  "implement_proposal",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{
				"proposal_id":    proposalID,
				"policy_version": fmt.Sprintf("%d", policy.Version),
			},
		}); err != nil {
			return nil, fmt.Errorf("recording policy update: %w", err)
		}
	}
	return policy, nil
}
