// Package voting implements the ahead-by-k streaming decision rule used by
// both discriminator stages (decomposition vote, solution vote).
package voting

import (
	"strconv"
	"strings"
)

// FirstToAheadByK streams votes left to right over C candidates and returns
// the leading candidate's index as soon as, after some vote, the leader's
// count is at least runner-up + k (k also trivially satisfies leader >= k when only one
// candidate has votes so far). Ties in leader count hold the decision in
// place — the existing leader is kept. If no prefix qualifies, it falls
// back to plain plurality via MajorityVote.
func FirstToAheadByK(votes []int, k int) int {
	if k < 1 {
		k = 1
	}
	counts := make(map[int]int)
	leader := -1
	leaderCount := 0
	for _, v := range votes {
		counts[v]++
		// Leader changes only on a strictly greater count; ties hold the
		// current decision rather than flipping to the newest tied index.
		if counts[v] > leaderCount {
			leader = v
			leaderCount = counts[v]
		} else if leader == -1 {
			leader = v
			leaderCount = counts[v]
		}
		runnerUp := 0
		for idx, c := range counts {
			if idx == leader {
				continue
			}
			if c > runnerUp {
				runnerUp = c
			}
		}
		if leaderCount >= runnerUp+k {
			return leader
		}
	}
	return MajorityVote(votes)
}

// MajorityVote returns the candidate with the most votes; ties break toward
// the lowest candidate index. Returns -1 if votes is empty.
func MajorityVote(votes []int) int {
	if len(votes) == 0 {
		return -1
	}
	counts := make(map[int]int)
	for _, v := range votes {
		counts[v]++
	}
	best := -1
	bestCount := -1
	for idx, c := range counts {
		if c > bestCount || (c == bestCount && idx < best) {
			best = idx
			bestCount = c
		}
	}
	return best
}

// VoteCounts returns the winner's vote count and the best count among all
// other candidates (0 if the winner received every vote).
func VoteCounts(votes []int, c int, winnerIdx int) (winnerVotes, secondBest int) {
	counts := make([]int, c)
	for _, v := range votes {
		if v >= 0 && v < c {
			counts[v]++
		}
	}
	winnerVotes = 0
	if winnerIdx >= 0 && winnerIdx < c {
		winnerVotes = counts[winnerIdx]
	}
	for idx, cnt := range counts {
		if idx == winnerIdx {
			continue
		}
		if cnt > secondBest {
			secondBest = cnt
		}
	}
	return winnerVotes, secondBest
}

// Margin computes the per-step vote_margin: winnerVotes - secondBest,
// clamped to a minimum of 1.
func Margin(winnerVotes, secondBest int) int {
	m := winnerVotes - secondBest
	if m < 1 {
		m = 1
	}
	return m
}

// ParseVote scans whitespace-separated tokens of a raw LM response; the
// first token containing an ASCII digit that parses to an integer in
// [1, c] becomes the 1-indexed choice, returned 0-indexed. Non-digit tokens
// and out-of-range integers are skipped. Returns (-1, false) if no token
// yields a valid vote.
func ParseVote(raw string, c int) (int, bool) {
	for _, tok := range strings.Fields(raw) {
		if !containsDigit(tok) {
			continue
		}
		digits := extractDigits(tok)
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n >= 1 && n <= c {
			return n - 1, true
		}
	}
	return -1, false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// extractDigits returns the leading contiguous run of ASCII digits found
// anywhere in s by scanning to the first digit and taking the run from
// there — e.g. "Option1" -> "1", "#2." -> "2".
func extractDigits(s string) string {
	start := -1
	end := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start == -1 {
				start = i
			}
			end = i + 1
		} else if start != -1 {
			break
		}
	}
	if start == -1 {
		return ""
	}
	return s[start:end]
}

// AdaptiveK applies the run's adaptive-margin rule: if enabled and the ring
// has at least one entry, widen or narrow baseK based on the ring average
// relative to baseK; otherwise return baseK unchanged.
func AdaptiveK(baseK int, enabled bool, ringAvg float64, ringLen int) int {
	if baseK < 1 {
		baseK = 1
	}
	if !enabled || ringLen < 1 {
		return baseK
	}
	switch {
	case ringAvg < 0.75*float64(baseK):
		return baseK + 1
	case ringAvg > 1.5*float64(baseK) && baseK > 1:
		return baseK - 1
	default:
		return baseK
	}
}
