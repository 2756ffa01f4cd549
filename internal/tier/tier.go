// Package tier defines the account tier ladder carried across the session boundary.
package tier

// Tier is the authorization level attached to an account. It is the only
// authorization signal the gateway relays to the backend; the backend owns
// the source of truth.
type Tier string

const (
	// Ghost is the free tier and the fail-safe default everywhere a tier is
	// missing or unparseable.
	Ghost Tier = "ghost"
	// Hunter is the first paid tier.
	Hunter Tier = "hunter"
	// Operator is the highest paid tier.
	Operator Tier = "operator"
)

// levels orders tiers for comparison; unknown tiers rank below ghost.
var levels = map[Tier]int{
	Ghost:    0,
	Hunter:   1,
	Operator: 2,
}

// Parse maps a raw tier string to a known Tier, defaulting to Ghost.
// Unknown values never grant privilege.
func Parse(raw string) Tier {
	t := Tier(raw)
	if _, ok := levels[t]; ok {
		return t
	}
	return Ghost
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := levels[t]
	return ok
}

// AtLeast reports whether t grants at least the privilege of min.
func (t Tier) AtLeast(min Tier) bool {
	return levels[t] >= levels[min]
}

func (t Tier) String() string { return string(t) }
