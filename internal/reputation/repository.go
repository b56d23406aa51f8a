package reputation

import (
	"sort"
	"sync"
)

// Repository defines storage operations for reputation and governance
// state.
type Repository interface {
	// PutScore stores or replaces an actor's score.
	PutScore(score *Score) error

	// GetScore retrieves an actor's score. Returns ErrScoreNotFound if
	// the actor has no reputation yet.
	GetScore(actor string) (*Score, error)

	// ListActors returns every actor with a stored score, sorted.
	ListActors() ([]string, error)

	// PutProposal stores or replaces a proposal.
	PutProposal(proposal *Proposal) error

	// GetProposal retrieves a proposal by ID. Returns ErrProposalNotFound
	// if it does not exist.
	GetProposal(proposalID string) (*Proposal, error)

	// PutVote stores a vote. Returns ErrAlreadyVoted if the voter already
	// has a ballot on the proposal.
	PutVote(vote *Vote) error

	// VotesByProposal returns a proposal's votes in cast order.
	VotesByProposal(proposalID string) ([]*Vote, error)

	// PutPolicy stores a governance policy version.
	PutPolicy(policy *GovernancePolicy) error

	// LatestPolicyVersion returns the highest stored policy version, or 0.
	LatestPolicyVersion() (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	scores    map[string]*Score
	proposals map[string]*Proposal
	votes     map[string][]*Vote          // proposal ID -> votes
	voted     map[string]map[string]bool  // proposal ID -> voter set
	policies  []*GovernancePolicy
}

// NewInMemoryRepository creates a new in-memory reputation repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		scores:    make(map[string]*Score),
		proposals: make(map[string]*Proposal),
		votes:     make(map[string][]*Vote),
		voted:     make(map[string]map[string]bool),
	}
}

// PutScore stores or replaces an actor's score.
func (r *InMemoryRepository) PutScore(score *Score) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[score.Actor] = copyScore(score)
	return nil
}

// GetScore retrieves an actor's score.
func (r *InMemoryRepository) GetScore(actor string) (*Score, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	score, ok := r.scores[actor]
	if !ok {
		return nil, ErrScoreNotFound
	}
	return copyScore(score), nil
}

// ListActors returns every actor with a stored score, sorted.
func (r *InMemoryRepository) ListActors() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actors := make([]string, 0, len(r.scores))
	for actor := range r.scores {
		actors = append(actors, actor)
	}
	sort.Strings(actors)
	return actors, nil
}

// PutProposal stores or replaces a proposal.
func (r *InMemoryRepository) PutProposal(proposal *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	proposalCopy := *proposal
	r.proposals[proposal.ID] = &proposalCopy
	return nil
}

// GetProposal retrieves a proposal by ID.
func (r *InMemoryRepository) GetProposal(proposalID string) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proposal, ok := r.proposals[proposalID]
	if !ok {
		return nil, ErrProposalNotFound
	}
	proposalCopy := *proposal
	return &proposalCopy, nil
}

// PutVote stores a vote, enforcing one ballot per voter per proposal.
func (r *InMemoryRepository) PutVote(vote *Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	voters := r.voted[vote.ProposalID]
	if voters == nil {
		voters = make(map[string]bool)
		r.voted[vote.ProposalID] = voters
	}
	if voters[vote.Voter] {
		return ErrAlreadyVoted
	}
	voters[vote.Voter] = true

	voteCopy := *vote
	r.votes[vote.ProposalID] = append(r.votes[vote.ProposalID], &voteCopy)
	return nil
}

// VotesByProposal returns a proposal's votes in cast order.
func (r *InMemoryRepository) VotesByProposal(proposalID string) ([]*Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := r.votes[proposalID]
	results := make([]*Vote, len(votes))
	for i, v := range votes {
		voteCopy := *v
		results[i] = &voteCopy
	}
	return results, nil
}

// PutPolicy stores a governance policy version.
func (r *InMemoryRepository) PutPolicy(policy *GovernancePolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	policyCopy := *policy
	r.policies = append(r.policies, &policyCopy)
	return nil
}

// LatestPolicyVersion returns the highest stored policy version, or 0.
func (r *InMemoryRepository) LatestPolicyVersion() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := 0
	for _, policy := range r.policies {
		if policy.Version > latest {
			latest = policy.Version
		}
	}
	return latest, nil
}

// copyScore returns a deep copy to prevent external modification.
func copyScore(s *Score) *Score {
	c := *s
	c.Badges = make([]string, len(s.Badges))
	copy(c.Badges, s.Badges)
	return &c
}
