package fileformat

import (
	"fmt"
	"strings"
)

// Ability is a capability tag on a type.
type Ability uint8

const (
	AbilityCopy  Ability = 0x1
	AbilityDrop  Ability = 0x2
	AbilityStore Ability = 0x4
	AbilityKey   Ability = 0x8
)

var abilityNames = []struct {
	a    Ability
	name string
}{
	{AbilityCopy, "copy"},
	{AbilityDrop, "drop"},
	{AbilityStore, "store"},
	{AbilityKey, "key"},
}

func (a Ability) String() string {
	for _, n := range abilityNames {
		if n.a == a {
			return n.name
		}
	}
	return fmt.Sprintf("ability(%d)", uint8(a))
}

// AbilitySet is a bitset of abilities.
type AbilitySet uint8

// EmptyAbilities has no abilities; AllAbilities has all four.
const (
	EmptyAbilities AbilitySet = 0
	AllAbilities   AbilitySet = AbilitySet(AbilityCopy | AbilityDrop | AbilityStore | AbilityKey)
)

// Abilities builds a set.
func Abilities(as ...Ability) AbilitySet {
	var s AbilitySet
	for _, a := range as {
		s |= AbilitySet(a)
	}
	return s
}

func (s AbilitySet) Has(a Ability) bool { return s&AbilitySet(a) != 0 }

func (s AbilitySet) Add(a Ability) AbilitySet { return s | AbilitySet(a) }

// IsSubsetOf reports whether every ability of s is in other.
func (s AbilitySet) IsSubsetOf(other AbilitySet) bool { return s&other == s }

// ParseAbilities reads a list like ["copy", "drop"].
func ParseAbilities(names []string) (AbilitySet, error) {
	var s AbilitySet
	for _, raw := range names {
		name := strings.TrimSpace(strings.ToLower(raw))
		found := false
		for _, n := range abilityNames {
			if n.name == name {
				s = s.Add(n.a)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown ability %q", raw)
		}
	}
	return s, nil
}

func (s AbilitySet) String() string {
	parts := make([]string, 0, 4)
	for _, n := range abilityNames {
		if s.Has(n.a) {
			parts = append(parts, n.name)
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
