package core

import "maps"

// PollTally counts votes per poll option for one room.
// The first vote of a respondent on a poll wins; later votes are rejected,
// so counts only ever grow and nobody is counted twice.
// PollTally is not safe for concurrent use; Room guards it with its lock.
type PollTally struct {
	counts map[string]map[string]int
	voters map[string]map[string]string
}

// NewPollTally returns an empty tally.
func NewPollTally() *PollTally {
	return &PollTally{
		counts: make(map[string]map[string]int),
		voters: make(map[string]map[string]string),
	}
}

// Record counts a vote and returns a copy of the poll's updated results.
func (t *PollTally) Record(pollID, option, respondent string) (map[string]int, error) {
	if pollID == "" || option == "" || respondent == "" {
		return nil, ErrBadRequest
	}

	voters, ok := t.voters[pollID]
	if !ok {
		voters = make(map[string]string)
		t.voters[pollID] = voters
		t.counts[pollID] = make(map[string]int)
	}
	if _, voted := voters[respondent]; voted {
		return nil, ErrAlreadyVoted
	}

	voters[respondent] = option
	t.counts[pollID][option]++
	return t.Results(pollID), nil
}

// Results returns a copy of the option counts of a poll. Unknown polls yield an empty map.
func (t *PollTally) Results(pollID string) map[string]int {
	out := make(map[string]int, len(t.counts[pollID]))
	maps.Copy(out, t.counts[pollID])
	return out
}

// Known reports whether the tally has seen the poll.
func (t *PollTally) Known(pollID string) bool {
	_, ok := t.voters[pollID]
	return ok
}

// Seed restores a poll from earlier votes, keyed by respondent. It does
// nothing when the poll is already known, so live votes are never overwritten.
func (t *PollTally) Seed(pollID string, votes map[string]string) {
	if pollID == "" || t.Known(pollID) {
		return
	}
	voters := make(map[string]string, len(votes))
	counts := make(map[string]int)
	for respondent, option := range votes {
		voters[respondent] = option
		counts[option]++
	}
	t.voters[pollID] = voters
	t.counts[pollID] = counts
}
