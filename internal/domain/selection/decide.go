// Package selection chooses the next pair of candidates to show a session
// during the generation phase.
package selection

import (
	"github.com/okian/duel/internal/domain/candidate"
)

// Rand is the random source consumed by the policy.
type Rand interface {
	Float64() float64
}

// Kind tags which path a Decision took.
type Kind int

// Decision kinds.
const (
	KindExploit Kind = iota + 1
	KindExplore
)

func (k Kind) String() string {
	switch k {
	case KindExploit:
		return "exploit"
	case KindExplore:
		return "explore"
	default:
		return "unknown"
	}
}

// Pair is two distinct candidates shown side by side.
type Pair struct {
	A candidate.Candidate
	B candidate.Candidate
}

// Valid reports whether the two sides differ by id and normalized text.
func (p Pair) Valid() bool {
	return p.A.ID != 0 && p.B.ID != 0 && p.A.ID != p.B.ID && !candidate.Same(p.A.Text, p.B.Text)
}

// Decision is the outcome of the selection policy. Pair is set only for KindExploit.
type Decision struct {
	Kind Kind
	Pair Pair
}

// Decide applies the exploit/explore policy to a pool snapshot.
//
// One draw decides the path: below pExploit the pair is sampled from the
// pool, otherwise exploration is requested. Exploration is forced when fewer
// than two distinct candidates remain after exclusion.
func Decide(pool []candidate.Candidate, exclude []int64, pExploit float64, rng Rand) Decision {
	eligible := distinct(pool, exclude)
	if len(eligible) < 2 {
		return Decision{Kind: KindExplore}
	}
	if rng.Float64() >= pExploit {
		return Decision{Kind: KindExplore}
	}
	pair, _ := sample(eligible, rng)
	return Decision{Kind: KindExploit, Pair: pair}
}

// Exploit samples a pair from the pool regardless of the exploit probability.
// It reports false when fewer than two distinct candidates are available.
func Exploit(pool []candidate.Candidate, exclude []int64, rng Rand) (Pair, bool) {
	return sample(distinct(pool, exclude), rng)
}

// Partner samples one candidate to pair with fixed.
func Partner(pool []candidate.Candidate, fixed candidate.Candidate, exclude []int64, rng Rand) (candidate.Candidate, bool) {
	eligible := distinct(pool, append(exclude[:len(exclude):len(exclude)], fixed.ID))
	eligible = dropText(eligible, fixed.Text)
	if len(eligible) == 0 {
		return candidate.Candidate{}, false
	}
	i := pick(eligible, rng)
	return eligible[i], true
}

// sample draws two candidates without replacement, weighted by SelectionCount+1.
func sample(eligible []candidate.Candidate, rng Rand) (Pair, bool) {
	if len(eligible) < 2 {
		return Pair{}, false
	}
	i := pick(eligible, rng)
	first := eligible[i]

	rest := make([]candidate.Candidate, 0, len(eligible)-1)
	rest = append(rest, eligible[:i]...)
	rest = append(rest, eligible[i+1:]...)
	second := rest[pick(rest, rng)]
	return Pair{A: first, B: second}, true
}

// pick returns the index chosen by a weighted draw. cs must be non-empty.
func pick(cs []candidate.Candidate, rng Rand) int {
	var total float64
	for _, c := range cs {
		total += c.Weight()
	}
	r := rng.Float64() * total
	for i, c := range cs {
		r -= c.Weight()
		if r < 0 {
			return i
		}
	}
	return len(cs) - 1
}

// distinct filters excluded ids and keeps the earliest candidate per
// normalized text, in creation order.
func distinct(pool []candidate.Candidate, exclude []int64) []candidate.Candidate {
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	sorted := make([]candidate.Candidate, len(pool))
	copy(sorted, pool)
	candidate.SortByCreation(sorted)

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, c := range sorted {
		if _, ok := skip[c.ID]; ok {
			continue
		}
		key := candidate.Normalize(c.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func dropText(cs []candidate.Candidate, text string) []candidate.Candidate {
	key := candidate.Normalize(text)
	out := cs[:0]
	for _, c := range cs {
		if candidate.Normalize(c.Text) != key {
			out = append(out, c)
		}
	}
	return out
}
