// Package roster decides which active characters speak for an incoming
// event, and in what order.
package roster

import (
	"math/rand"
	"strings"

	"troupe/internal/database"
)

// SpeakingOrder returns the order in which active characters respond.
//
// With more than one character on an ordinary turn, or more than two on a
// continuation, the order is first shuffled so multi-character rooms do not
// always answer in activation order. Characters whose name (any whitespace
// token of it, case-insensitive) appears in the message text are then moved
// to the front, keeping their relative order. Single-character rooms and
// two-character continuations are deterministic.
//
// rng must not be nil; tests inject a seeded source.
func SpeakingOrder(active []database.ActiveCharacter, message string, continuation bool, rng *rand.Rand) []database.ActiveCharacter {
	order := make([]database.ActiveCharacter, len(active))
	copy(order, active)

	if (!continuation && len(order) > 1) || (continuation && len(order) > 2) {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	if message == "" {
		return order
	}
	lowered := strings.ToLower(message)

	mentioned := make([]database.ActiveCharacter, 0, len(order))
	rest := make([]database.ActiveCharacter, 0, len(order))
	for _, c := range order {
		if nameMentioned(c.Name, lowered) {
			mentioned = append(mentioned, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(mentioned, rest...)
}

// Mentioned reports whether any whitespace-delimited token of name occurs
// in the message text, case-insensitively. Producers use it to decide
// whether a message addresses an active character.
func Mentioned(name, message string) bool {
	return nameMentioned(name, strings.ToLower(message))
}

// nameMentioned reports whether any whitespace-delimited token of name
// occurs in the lowercased message text.
func nameMentioned(name, loweredMessage string) bool {
	for _, word := range strings.Fields(strings.ToLower(name)) {
		if strings.Contains(loweredMessage, word) {
			return true
		}
	}
	return false
}
