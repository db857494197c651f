package hub

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Presence tracks the number of active connections per user. A user is online
// while their count is above zero; transitions across zero are what callers
// broadcast on.
type Presence struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	counts map[int64]int
}

func NewPresence(logger *zap.SugaredLogger) *Presence {
	return &Presence{
		logger: logger,
		counts: make(map[int64]int),
	}
}

// Join increments the user's connection count and reports whether the user
// just came online (count moved 0 -> 1).
func (p *Presence) Join(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[userID]++

	return p.counts[userID] == 1
}

// Leave decrements the user's connection count and reports whether the user
// just went offline (count moved 1 -> 0). Decrementing an entry already at
// zero is a benign inconsistency: it is logged and ignored.
func (p *Presence) Leave(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, ok := p.counts[userID]
	if !ok || count == 0 {
		p.logger.Warnf("Presence leave for user %d without matching join", userID)
		return false
	}

	if count == 1 {
		delete(p.counts, userID)
		return true
	}

	p.counts[userID] = count - 1

	return false
}

// Online returns ids of all users with at least one active connection,
// sorted ascending.
func (p *Presence) Online() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int64, 0, len(p.counts))
	for id := range p.counts {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
