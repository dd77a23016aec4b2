package chain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kontourlabs/kontourd/metrics"
)

// cancelCheckInterval is how many nonces are tried between context checks.
const cancelCheckInterval = 4096

// Miner searches for a nonce that seals a candidate block at its recorded
// difficulty. Mining is CPU-bound and blocking; callers run it on a
// dedicated goroutine and cancel through the context.
type Miner struct {
	log *zap.Logger
	met *metrics.Metrics
}

func NewMiner(log *zap.Logger, met *metrics.Metrics) *Miner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Miner{log: log, met: met}
}

// Mine increments the candidate's nonce from zero until its hash has at
// least Difficulty leading zero bits, then seals and returns it. On
// cancellation the candidate is left unsealed and ctx.Err is returned.
func (m *Miner) Mine(ctx context.Context, candidate *Block) (*Block, error) {
	start := time.Now()
	var attempts uint64

	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				if m.met != nil {
					m.met.MiningAttempts.Add(float64(attempts))
				}
				m.log.Info("mining cancelled",
					zap.Uint64("index", candidate.Index),
					zap.Uint64("attempts", attempts))
				return nil, err
			}
		}
		candidate.Nonce = nonce
		hash := candidate.ComputeHash()
		attempts++
		if leadingZeroBitsHex(hash) >= candidate.Difficulty {
			candidate.Hash = hash
			elapsed := time.Since(start)
			if m.met != nil {
				m.met.MiningAttempts.Add(float64(attempts))
				m.met.MiningSeconds.Observe(elapsed.Seconds())
			}
			m.log.Info("block sealed",
				zap.Uint64("index", candidate.Index),
				zap.Int("difficulty", candidate.Difficulty),
				zap.Uint64("nonce", nonce),
				zap.Uint64("attempts", attempts),
				zap.Duration("elapsed", elapsed))
			return candidate, nil
		}
	}
}
