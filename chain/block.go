package chain

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// GenesisPreviousHash is the sentinel parent hash of the genesis block.
var GenesisPreviousHash = strings.Repeat("0", 64)

// Block is an ordered batch of transactions sealed by a proof-of-work hash.
// It is mutable only during the nonce search; the ledger freezes it on
// append.
type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    int64          `json:"timestamp"` // ms since epoch
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previousHash"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
	Difficulty   int            `json:"difficulty"`
}

// ComputeHash derives the proof-of-work digest over every field except Hash
// itself. Transactions contribute their identifier and signature bytes so a
// sealed block pins its exact contents.
func (b *Block) ComputeHash() string {
	h := sha3.New256()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], b.Index)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(b.Timestamp))
	h.Write(buf[:])
	h.Write([]byte(b.PreviousHash))
	binary.BigEndian.PutUint64(buf[:], b.Nonce)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(b.Difficulty))
	h.Write(buf[:])

	for _, tx := range b.Transactions {
		h.Write([]byte(tx.Hash()))
		if tx.Signature != nil {
			h.Write([]byte(tx.Signature.Algorithm))
			h.Write(tx.Signature.Sig)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// MeetsDifficulty reports whether the stored hash has at least Difficulty
// leading zero bits.
func (b *Block) MeetsDifficulty() bool {
	return leadingZeroBitsHex(b.Hash) >= b.Difficulty
}

// NewGenesisBlock creates the chain's first block. It carries no
// transactions and is exempt from the proof-of-work requirement.
func NewGenesisBlock(difficulty int) *Block {
	b := &Block{
		Index:        0,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: nil,
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
		Difficulty:   difficulty,
	}
	b.Hash = b.ComputeHash()
	return b
}
