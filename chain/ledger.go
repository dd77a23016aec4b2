package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kontourlabs/kontourd/config"
	"github.com/kontourlabs/kontourd/contour"
	"github.com/kontourlabs/kontourd/metrics"
	"github.com/kontourlabs/kontourd/pqsig"
)

// ContourVerifier decides whether a transaction's geometric proof is
// acceptable. contour.Verifier is the production implementation.
type ContourVerifier interface {
	Verify(ctx context.Context, data *contour.Data, txHash string) bool
}

// BlockStore persists the chain as a literal append-only block sequence.
type BlockStore interface {
	Append(*Block) error
	Load() ([]*Block, error)
}

// Ledger owns the chain, the pending pool, derived balances and the
// difficulty state. Reads may run concurrently; chain mutation is
// serialized, and at most one mining operation is in flight at a time.
type Ledger struct {
	cfg      config.Config
	verifier ContourVerifier
	miner    *Miner
	store    BlockStore
	log      *zap.Logger
	met      *metrics.Metrics

	// mineMu enforces the single-writer mining discipline; mu guards the
	// state below it.
	mineMu sync.Mutex
	mu     sync.RWMutex

	blocks     []*Block
	pending    []*Transaction
	balances   map[string]uint64
	difficulty int
	stamps     []int64
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithMetrics(met *metrics.Metrics) Option {
	return func(l *Ledger) { l.met = met }
}

// WithStore persists every appended block and reloads an existing chain at
// construction.
func WithStore(store BlockStore) Option {
	return func(l *Ledger) { l.store = store }
}

// New builds a ledger from cfg. Without a store (or with an empty one) a
// genesis block is created; otherwise the persisted chain is replayed.
func New(cfg config.Config, verifier ContourVerifier, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		cfg:        cfg,
		verifier:   verifier,
		log:        zap.NewNop(),
		balances:   make(map[string]uint64),
		difficulty: cfg.InitialDifficulty,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.miner = NewMiner(l.log.Named("miner"), l.met)

	var persisted []*Block
	if l.store != nil {
		var err error
		if persisted, err = l.store.Load(); err != nil {
			return nil, fmt.Errorf("chain: load persisted chain: %w", err)
		}
	}
	if len(persisted) == 0 {
		genesis := NewGenesisBlock(cfg.InitialDifficulty)
		l.applyBlock(genesis)
		if l.store != nil {
			if err := l.store.Append(genesis); err != nil {
				return nil, fmt.Errorf("chain: persist genesis: %w", err)
			}
		}
		l.log.Info("created genesis block", zap.String("hash", genesis.Hash))
	} else {
		var prev *Block
		for _, b := range persisted {
			if err := l.replayBlock(prev, b); err != nil {
				return nil, fmt.Errorf("chain: replay persisted chain: %w", err)
			}
			prev = b
		}
		l.log.Info("loaded chain",
			zap.Int("blocks", len(persisted)),
			zap.Int("difficulty", l.difficulty))
	}
	if l.met != nil {
		l.met.Difficulty.Set(float64(l.difficulty))
	}
	return l, nil
}

// replayBlock validates one persisted block against the chain built so far,
// then folds it in. Store rows are not trusted: a tampered block must fail
// here rather than poison the derived balances admission relies on.
func (l *Ledger) replayBlock(prev, b *Block) error {
	if b.ComputeHash() != b.Hash {
		return &ConsensusError{Index: b.Index, Reason: "stored hash does not recompute"}
	}
	if prev == nil {
		if b.PreviousHash != GenesisPreviousHash {
			return &ConsensusError{Index: b.Index, Reason: "genesis parent hash is not the sentinel"}
		}
	} else {
		if b.PreviousHash != prev.Hash {
			return &ConsensusError{Index: b.Index, Reason: "previous hash does not match parent"}
		}
		if !b.MeetsDifficulty() {
			return &ConsensusError{Index: b.Index, Reason: "hash does not satisfy recorded difficulty"}
		}
	}

	// Admission only ever lets confirmed funds cover a block's outflows, so
	// a sound chain never overdraws any sender within one block either.
	spent := make(map[string]uint64)
	for _, tx := range b.Transactions {
		if !tx.IsReward() {
			spent[tx.From] += tx.Amount
		}
	}
	for from, amount := range spent {
		if l.balances[from] < amount {
			return &ConsensusError{Index: b.Index, Reason: "transaction overdraws sender balance"}
		}
	}

	l.applyBlock(b)
	return nil
}

// applyBlock appends b and folds it into the derived state. The caller
// holds mu (or has exclusive access during construction).
func (l *Ledger) applyBlock(b *Block) {
	l.blocks = append(l.blocks, b)
	for _, tx := range b.Transactions {
		if !tx.IsReward() {
			l.balances[tx.From] -= tx.Amount
		}
		l.balances[tx.To] += tx.Amount
	}
	l.stamps = append(l.stamps, b.Timestamp)
	if len(l.stamps) > retargetWindow {
		l.stamps = l.stamps[len(l.stamps)-retargetWindow:]
	}
	l.difficulty = nextDifficulty(l.difficulty, l.stamps, l.cfg.TargetBlockTime)
}

// SubmitTransaction runs the admission pipeline: structural validation,
// then signature and geometric verification concurrently, then the
// composite chain+pool balance check, then FIFO append to the pending pool.
// Rejections are typed sentinels and leave no state behind.
func (l *Ledger) SubmitTransaction(ctx context.Context, tx *Transaction) error {
	if err := l.checkStructure(tx); err != nil {
		return l.reject(err, tx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := pqsig.Verify(tx.SigningBytes(), tx.Signature)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !ok {
			return fmt.Errorf("%w: verification failed", ErrInvalidSignature)
		}
		if pqsig.AddressFromPublicKey(tx.Signature.PublicKey) != tx.From {
			return fmt.Errorf("%w: public key is not bound to sender address", ErrInvalidSignature)
		}
		return nil
	})
	g.Go(func() error {
		if !l.verifier.Verify(gctx, tx.Contour, tx.Hash()) {
			return ErrGeometricProofRejected
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return l.reject(err, tx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.MaxPoolSize > 0 && len(l.pending) >= l.cfg.MaxPoolSize {
		return l.reject(ErrPoolFull, tx)
	}
	if l.balances[tx.From] < l.pendingSpendLocked(tx.From)+tx.Amount {
		return l.reject(ErrInsufficientFunds, tx)
	}
	l.pending = append(l.pending, tx)
	if l.met != nil {
		l.met.TxAdmitted.Inc()
		l.met.PendingPoolSize.Set(float64(len(l.pending)))
	}
	l.log.Debug("transaction admitted",
		zap.String("tx", tx.Hash()),
		zap.String("from", tx.From),
		zap.String("to", tx.To),
		zap.Uint64("amount", tx.Amount))
	return nil
}

func (l *Ledger) checkStructure(tx *Transaction) error {
	switch {
	case tx == nil:
		return fmt.Errorf("%w: nil transaction", ErrValidation)
	case tx.From == "" || tx.To == "":
		return fmt.Errorf("%w: empty address", ErrValidation)
	case tx.From == NetworkAddress:
		return fmt.Errorf("%w: reward issuance cannot be submitted", ErrValidation)
	case tx.Amount == 0:
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case tx.Contour != nil && tx.Signature == nil:
		return fmt.Errorf("%w: contour proof requires a signature", ErrValidation)
	case tx.Signature == nil:
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	return nil
}

// pendingSpendLocked sums pool outflows for addr. Caller holds mu.
func (l *Ledger) pendingSpendLocked(addr string) uint64 {
	var out uint64
	for _, tx := range l.pending {
		if tx.From == addr {
			out += tx.Amount
		}
	}
	return out
}

func (l *Ledger) reject(err error, tx *Transaction) error {
	if l.met != nil {
		l.met.TxRejected.WithLabelValues(rejectionReason(err)).Inc()
	}
	hash := ""
	if tx != nil {
		hash = tx.Hash()
	}
	l.log.Debug("transaction rejected", zap.String("tx", hash), zap.Error(err))
	return err
}

// MinePendingTransactions seals the current pool plus one reward issuance
// into the next block. Transactions submitted while mining runs land in the
// following block. Cancellation returns ctx's error with the pool and chain
// untouched.
func (l *Ledger) MinePendingTransactions(ctx context.Context, minerAddress string) (*Block, error) {
	if minerAddress == "" {
		return nil, fmt.Errorf("%w: empty miner address", ErrValidation)
	}

	l.mineMu.Lock()
	defer l.mineMu.Unlock()

	l.mu.RLock()
	drained := len(l.pending)
	txs := make([]*Transaction, 0, drained+1)
	txs = append(txs, l.pending...)
	tip := l.blocks[len(l.blocks)-1]
	difficulty := l.difficulty
	l.mu.RUnlock()

	txs = append(txs, &Transaction{
		From:      NetworkAddress,
		To:        minerAddress,
		Amount:    l.cfg.MiningReward,
		Timestamp: time.Now().UnixMilli(),
	})

	candidate := &Block{
		Index:        tip.Index + 1,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: txs,
		PreviousHash: tip.Hash,
		Difficulty:   difficulty,
	}

	mined, err := l.miner.Mine(ctx, candidate)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.pending = append([]*Transaction(nil), l.pending[drained:]...)
	l.applyBlock(mined)
	if l.met != nil {
		l.met.BlocksMined.Inc()
		l.met.Difficulty.Set(float64(l.difficulty))
		l.met.PendingPoolSize.Set(float64(len(l.pending)))
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Append(mined); err != nil {
			// The in-memory chain already advanced; losing persistence is
			// recoverable on restart from the earlier prefix.
			l.log.Error("persist mined block",
				zap.Uint64("index", mined.Index), zap.Error(err))
		}
	}
	l.log.Info("block appended",
		zap.Uint64("index", mined.Index),
		zap.Int("transactions", len(mined.Transactions)),
		zap.Int("nextDifficulty", l.Difficulty()))
	return mined, nil
}

// GetBalance returns addr's confirmed balance.
func (l *Ledger) GetBalance(addr string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// PendingCount returns the pool size.
func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// Difficulty returns the difficulty the next block must satisfy.
func (l *Ledger) Difficulty() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.difficulty
}

// Tip returns the latest block.
func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// Blocks returns a snapshot of the chain. Blocks are frozen after append;
// callers must not mutate them.
func (l *Ledger) Blocks() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Block(nil), l.blocks...)
}

// ValidateChain re-checks the whole chain from genesis: hash recomputation,
// stored difficulty, parent linkage, and every transaction's signature and
// geometric proof. It is read-only and returns a *ConsensusError for the
// first offending block, or nil when the chain is sound.
func (l *Ledger) ValidateChain(ctx context.Context) error {
	blocks := l.Blocks()

	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.ComputeHash() != b.Hash {
			return &ConsensusError{Index: b.Index, Reason: "stored hash does not recompute"}
		}
		if i == 0 {
			if b.PreviousHash != GenesisPreviousHash {
				return &ConsensusError{Index: b.Index, Reason: "genesis parent hash is not the sentinel"}
			}
			continue
		}
		if !b.MeetsDifficulty() {
			return &ConsensusError{Index: b.Index, Reason: "hash does not satisfy recorded difficulty"}
		}
		if b.PreviousHash != blocks[i-1].Hash {
			return &ConsensusError{Index: b.Index, Reason: "previous hash does not match parent"}
		}

		rewards := 0
		for _, tx := range b.Transactions {
			if tx.IsReward() {
				if rewards++; rewards > 1 {
					return &ConsensusError{Index: b.Index, Reason: "multiple reward transactions"}
				}
				if tx.Amount == 0 {
					return &ConsensusError{Index: b.Index, Reason: "zero-amount reward"}
				}
				continue
			}
			ok, err := pqsig.Verify(tx.SigningBytes(), tx.Signature)
			if err != nil || !ok {
				return &ConsensusError{Index: b.Index, Reason: "invalid transaction signature"}
			}
			if pqsig.AddressFromPublicKey(tx.Signature.PublicKey) != tx.From {
				return &ConsensusError{Index: b.Index, Reason: "signature key not bound to sender"}
			}
			if tx.Contour != nil && !l.verifier.Verify(ctx, tx.Contour, tx.Hash()) {
				return &ConsensusError{Index: b.Index, Reason: "geometric proof rejected"}
			}
		}
	}
	return nil
}

// IsChainValid is the boolean form of ValidateChain.
func (l *Ledger) IsChainValid(ctx context.Context) bool {
	return l.ValidateChain(ctx) == nil
}
