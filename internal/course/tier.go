package course

import "fmt"

// Tier is the result of a mini-game, ordered from worst to best.
type Tier string

const (
	TierNone   Tier = "none"
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierNone, TierBronze, TierSilver, TierGold}
}

// Rank returns the position of t in the tier order, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, x := range Tiers() {
		if x == t {
			return i
		}
	}
	return -1
}

// Better reports whether t ranks above other.
func (t Tier) Better(other Tier) bool {
	return t.Rank() > other.Rank()
}

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if t.Rank() < 0 {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
