package voting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstToAheadByKDecidesWhenMarginReached(t *testing.T) {
	// candidate 0 receives every vote; with k=2 it leads the (empty)
	// runner-up by 2 after the second vote, so the stream decides there.
	votes := []int{0, 0, 0}
	assert.Equal(t, 0, FirstToAheadByK(votes, 2))
}

func TestFirstToAheadByKTiesHoldTheCurrentLeader(t *testing.T) {
	// 0 becomes leader first; a later tie for 1 should not flip the leader.
	votes := []int{0, 1, 0, 1}
	got := FirstToAheadByK(votes, 5)
	assert.Equal(t, MajorityVote(votes), got)
}

func TestFirstToAheadByKFallsBackToMajorityVote(t *testing.T) {
	votes := []int{0, 1, 2}
	got := FirstToAheadByK(votes, 10)
	assert.Equal(t, MajorityVote(votes), got)
}

func TestMajorityVoteBreaksTiesTowardLowestIndex(t *testing.T) {
	votes := []int{1, 0, 1, 0}
	assert.Equal(t, 0, MajorityVote(votes))
}

func TestMajorityVoteEmptyReturnsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, MajorityVote(nil))
}

func TestVoteCountsReportsWinnerAndRunnerUp(t *testing.T) {
	votes := []int{0, 0, 1, 2}
	winner, second := VoteCounts(votes, 3, 0)
	assert.Equal(t, 2, winner)
	assert.Equal(t, 1, second)
}

func TestMarginClampsToAtLeastOne(t *testing.T) {
	assert.Equal(t, 1, Margin(3, 3))
	assert.Equal(t, 2, Margin(5, 3))
}

func TestParseVoteExtractsFirstValidChoice(t *testing.T) {
	idx, ok := ParseVote("I pick Option2 because it's best", 3)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestParseVoteRejectsOutOfRangeChoice(t *testing.T) {
	idx, ok := ParseVote("choice 9", 3)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestParseVoteNoDigitsReturnsFalse(t *testing.T) {
	idx, ok := ParseVote("no numbers here", 3)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestAdaptiveKWidensWhenMarginsRunNarrow(t *testing.T) {
	assert.Equal(t, 3, AdaptiveK(2, true, 1.0, 5))
}

func TestAdaptiveKNarrowsWhenMarginsRunWide(t *testing.T) {
	assert.Equal(t, 1, AdaptiveK(2, true, 5.0, 5))
}

func TestAdaptiveKDisabledReturnsBaseUnchanged(t *testing.T) {
	assert.Equal(t, 2, AdaptiveK(2, false, 10.0, 5))
}
