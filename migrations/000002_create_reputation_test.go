//go:build integration

package migrations_test

import (
	"testing"
	"time"
)

// TestMigration000002_OneVotePerVoter verifies the (proposal_id, voter)
// uniqueness constraint on governance_votes.
func TestMigration000002_OneVotePerVoter(t *testing.T) {
	db := openDB(t)

	now := time.Now().UTC()
	proposalID := "migration-test-proposal-" + now.Format("20060102150405.000000000")

	_, err := db.Exec(`
		INSERT INTO governance_proposals
			(id, proposer, proposal_type, title, consensus_model, status, quorum, created_at, voting_ends_at)
		VALUES ($1, 'test-proposer', 'policy_change', 'migration test', 'simple_majority', 'active', 10, $2, $3)`,
		proposalID, now, now.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("inserting proposal failed: %v", err)
	}
	defer func() {
		db.Exec(`DELETE FROM governance_votes WHERE proposal_id = $1`, proposalID)
		db.Exec(`DELETE FROM governance_proposals WHERE id = $1`, proposalID)
	}()

	const insertVote = `
		INSERT INTO governance_votes (id, proposal_id, voter, direction, weight, cast_at)
		VALUES ($1, $2, 'test-voter', 'approve', 1.0, $3)`

	if _, err := db.Exec(insertVote, proposalID+"-v1", proposalID, now); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if _, err := db.Exec(insertVote, proposalID+"-v2", proposalID, now); err == nil {
		t.Error("expected second vote by same voter to fail")
	}
}

// TestMigration000002_VoteRequiresProposal verifies the foreign key from
// votes to proposals.
func TestMigration000002_VoteRequiresProposal(t *testing.T) {
	db := openDB(t)

	_, err := db.Exec(`
		INSERT INTO governance_votes (id, proposal_id, voter, direction, weight, cast_at)
		VALUES ('migration-test-orphan', 'no-such-proposal', 'test-voter', 'approve', 1.0, $1)`,
		time.Now().UTC())
	if err == nil {
		db.Exec(`DELETE FROM governance_votes WHERE id = 'migration-test-orphan'`)
		t.Error("expected vote referencing missing proposal to fail")
	}
}
