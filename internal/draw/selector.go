// Package draw picks lottery winners.
//
// Select is a pure function of its inputs: the candidate set is deduplicated
// and sorted before sampling, so the caller's ordering never influences the
// result and a recorded (candidates, n, seed) triple always replays to the
// same winners.
package draw

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
)

// Select draws min(n, len(candidates)) distinct ids uniformly without
// replacement. The input slice is not modified.
func Select(candidates []string, n int, seed int64) ([]string, error) {
	if n < 0 {
		return nil, domain.InvalidArgument(fmt.Sprintf("draw count must be >= 0, got %d", n))
	}
	pool := Normalize(candidates)
	if n == 0 || len(pool) == 0 {
		return []string{}, nil
	}
	if n > len(pool) {
		n = len(pool)
	}

	// Partial Fisher-Yates: the first n slots end up holding the sample.
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	out := make([]string, n)
	copy(out, pool[:n])
	return out, nil
}

// Normalize returns a sorted copy of ids with duplicates and empty strings
// removed. This is the canonical candidate order stored on draw records.
func Normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NewSeed returns a high-entropy seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Verify replays a recorded draw and reports whether it yields the recorded
// winners.
func Verify(rec domain.DrawRecord) (bool, error) {
	got, err := Select(rec.Candidates, rec.Requested, rec.Seed)
	if err != nil {
		return false, err
	}
	if len(got) != len(rec.Selected) {
		return false, nil
	}
	for i := range got {
		if got[i] != rec.Selected[i] {
			return false, nil
		}
	}
	return true, nil
}
