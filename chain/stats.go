package chain

import (
	"math"
	"time"
)

// Stats is the ledger's aggregate query surface.
type Stats struct {
	TotalBlocks         uint64        `json:"totalBlocks"`
	TotalTransactions   uint64        `json:"totalTransactions"`
	PendingTransactions int           `json:"pendingTransactions"`
	AverageBlockTime    time.Duration `json:"averageBlockTime"`
	CurrentDifficulty   int           `json:"currentDifficulty"`
	NetworkHashRate     float64       `json:"networkHashRate"` // hashes per second
}

// Stats returns a consistent snapshot of chain aggregates. The hash rate is
// the expected hashes per block at the current difficulty, 2^difficulty,
// spread over the observed average block interval.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		TotalBlocks:         uint64(len(l.blocks)),
		PendingTransactions: len(l.pending),
		CurrentDifficulty:   l.difficulty,
	}
	for _, b := range l.blocks {
		s.TotalTransactions += uint64(len(b.Transactions))
	}
	if len(l.blocks) > 1 {
		first := l.blocks[0].Timestamp
		last := l.blocks[len(l.blocks)-1].Timestamp
		s.AverageBlockTime = time.Duration(last-first) * time.Millisecond / time.Duration(len(l.blocks)-1)
	}
	if s.AverageBlockTime > 0 {
		s.NetworkHashRate = math.Exp2(float64(l.difficulty)) / s.AverageBlockTime.Seconds()
	}
	return s
}
