package session

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// RewardWeights are the fixed point and coin amounts granted per action.
type RewardWeights struct {
	AttendancePoints int
	AttendanceCoins  int
	CompletionPoints int
	CompletionCoins  int
	FocusPoints      int
	FocusCoins       int
}

// DefaultRewardWeights returns the standard weights.
func DefaultRewardWeights() RewardWeights {
	return RewardWeights{
		AttendancePoints: 10,
		AttendanceCoins:  2,
		CompletionPoints: 5,
		CompletionCoins:  1,
		FocusPoints:      5,
		FocusCoins:       1,
	}
}

// IsZero reports whether no weight is set.
func (w RewardWeights) IsZero() bool {
	return w == RewardWeights{}
}

// Reward is a bundle applied to the ledger in one transaction.
type Reward struct {
	Minutes int `json:"minutes"`
	Points  int `json:"points"`
	Coins   int `json:"coins"`
}

// IsZero reports whether applying the reward would change nothing.
func (r Reward) IsZero() bool {
	return r == Reward{}
}

// AttendanceReward computes the bundle for a class marking.
// Attendance and completion are rewarded independently; completion does not
// require attendance.
func AttendanceReward(attended, completed bool, w RewardWeights) Reward {
	var r Reward
	if attended {
		r.Points += w.AttendancePoints
		r.Coins += w.AttendanceCoins
	}
	if completed {
		r.Points += w.CompletionPoints
		r.Coins += w.CompletionCoins
	}
	return r
}

// FocusReward is the bundle for one completed work interval of the given length.
func FocusReward(workMinutes int, w RewardWeights) Reward {
	return Reward{Minutes: workMinutes, Points: w.FocusPoints, Coins: w.FocusCoins}
}
