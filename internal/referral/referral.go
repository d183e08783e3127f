// Package referral walks a user's invitation downline and aggregates it into
// per-level counts, effective members and the reward rank reached.
package referral

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxDepth   = 3
	CodeLength = 7
)

// EffectiveThreshold is the approved recharge total, in USDT, that makes an
// invitee count as effective.
var EffectiveThreshold = decimal.NewFromInt(115)

var ErrInvalidUser = errors.New("invalid user id")

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Node is one user row of a downline snapshot.
type Node struct {
	UserID        int64           `db:"id" json:"id"`
	InvitedBy     *int64          `db:"invited_by" json:"-"`
	PhoneNumber   string          `db:"phone_number" json:"phone_number"`
	TotalRecharge decimal.Decimal `db:"total_recharge" json:"total_recharge"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

func (n Node) Effective() bool {
	return n.TotalRecharge.GreaterThanOrEqual(EffectiveThreshold)
}

type Member struct {
	Node
	Level int `json:"level"`
}

type Stats struct {
	Level1          int        `json:"level1"`
	Level2          int        `json:"level2"`
	Level3          int        `json:"level3"`
	Total           int        `json:"total"`
	Effective       int        `json:"effective"`
	EffectiveDirect int        `json:"effective_direct"`
	ByLevel         [][]Member `json:"by_level"`
	Rank            *Rank      `json:"rank,omitempty"`
	NextRank        *Rank      `json:"next_rank,omitempty"`
}

func ValidateUserID(userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	return nil
}

// Traverse runs a breadth-first walk from rootID over invited_by edges.
// Each user is reported once, at the shallowest level it is reachable from,
// and cycles in the snapshot are ignored.
func Traverse(rootID int64, rows []Node, maxDepth int) []Member {
	children := make(map[int64][]Node)
	for _, row := range rows {
		if row.InvitedBy == nil {
			continue
		}
		children[*row.InvitedBy] = append(children[*row.InvitedBy], row)
	}
	for parent := range children {
		sort.Slice(children[parent], func(i, j int) bool {
			return children[parent][i].UserID < children[parent][j].UserID
		})
	}

	visited := map[int64]struct{}{rootID: {}}
	frontier := []int64{rootID}
	members := make([]Member, 0, len(rows))
	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		next := make([]int64, 0)
		for _, parent := range frontier {
			for _, child := range children[parent] {
				if _, ok := visited[child.UserID]; ok {
					continue
				}
				visited[child.UserID] = struct{}{}
				members = append(members, Member{Node: child, Level: level})
				next = append(next, child.UserID)
			}
		}
		frontier = next
	}
	return members
}

func Aggregate(members []Member) Stats {
	stats := Stats{ByLevel: make([][]Member, MaxDepth)}
	for i := range stats.ByLevel {
		stats.ByLevel[i] = []Member{}
	}
	for _, member := range members {
		switch member.Level {
		case 1:
			stats.Level1++
		case 2:
			stats.Level2++
		case 3:
			stats.Level3++
		default:
			continue
		}
		stats.ByLevel[member.Level-1] = append(stats.ByLevel[member.Level-1], member)
		if member.Effective() {
			stats.Effective++
			if member.Level == 1 {
				stats.EffectiveDirect++
			}
		}
	}
	stats.Total = stats.Level1 + stats.Level2 + stats.Level3
	stats.Rank, stats.NextRank = RankFor(stats.EffectiveDirect, stats.Effective)
	return stats
}

// NewCode returns a random invitation code of CodeLength characters.
func NewCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// MaskPhone hides the middle of a phone number: 987****3210.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return phone
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
