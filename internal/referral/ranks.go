package referral

import "github.com/shopspring/decimal"

type Rank struct {
	Name          string          `json:"name"`
	Direct        int             `json:"direct"`
	Team          int             `json:"team"`
	BaseReward    decimal.Decimal `json:"base_reward"`
	PerDirectUSDT decimal.Decimal `json:"per_direct"`
}

// Ranks is ordered from lowest to highest.
var Ranks = []Rank{
	newRank("Jawan", 3, 0, 30, 10),
	newRank("Naik", 4, 9, 90, 20),
	newRank("Havildar", 5, 27, 160, 30),
	newRank("Naib-Subedar", 8, 81, 350, 40),
	newRank("Subedar", 12, 243, 700, 50),
	newRank("Jemadar", 20, 729, 1500, 70),
	newRank("Rissaldar", 30, 2187, 3000, 90),
	newRank("Subedar-Major", 40, 6561, 6000, 120),
	newRank("Commandant", 50, 19683, 12000, 150),
}

func newRank(name string, direct, team int, base, perDirect int64) Rank {
	return Rank{
		Name:          name,
		Direct:        direct,
		Team:          team,
		BaseReward:    decimal.NewFromInt(base),
		PerDirectUSDT: decimal.NewFromInt(perDirect),
	}
}

// RankFor returns the highest rank whose direct and team thresholds are met
// by effective members, and the rank after it. Either may be nil.
func RankFor(effectiveDirect, effectiveTeam int) (*Rank, *Rank) {
	var reached *Rank
	for i := range Ranks {
		rank := Ranks[i]
		if effectiveDirect < rank.Direct || effectiveTeam < rank.Team {
			next := rank
			return reached, &next
		}
		current := rank
		reached = &current
	}
	return reached, nil
}
