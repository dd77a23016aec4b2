package chain

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/kontourlabs/kontourd/contour"
	"github.com/kontourlabs/kontourd/pqsig"
)

// NetworkAddress is the sentinel sender of mining reward issuance. It holds
// no key pair; transactions from it are only ever minted by the ledger
// itself, exactly one per block.
const NetworkAddress = "NETWORK"

// Transaction is a value transfer awaiting or included in a block. It is
// immutable once admitted to the pending pool.
type Transaction struct {
	From      string           `json:"fromAddress"`
	To        string           `json:"toAddress"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"` // ms since epoch
	Contour   *contour.Data    `json:"contourData,omitempty"`
	Signature *pqsig.Signature `json:"signature,omitempty"`
}

// NewTransaction builds an unsigned transfer stamped with the current time.
func NewTransaction(from, to string, amount uint64) *Transaction {
	return &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: time.Now().UnixMilli(),
	}
}

// IsReward reports whether tx is a mining reward issuance.
func (tx *Transaction) IsReward() bool {
	return tx.From == NetworkAddress
}

// SigningBytes is the canonical payload covered by the signature: sender,
// recipient, amount, timestamp and the hash of the attached contour curve
// control points, if any.
func (tx *Transaction) SigningBytes() []byte {
	h := sha3.New256()
	h.Write([]byte(tx.From))
	h.Write([]byte{0})
	h.Write([]byte(tx.To))
	h.Write([]byte{0})

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tx.Amount)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(tx.Timestamp))
	h.Write(buf[:])

	if tx.Contour != nil {
		h.Write([]byte(tx.Contour.Algorithm))
		h.Write([]byte{0})
		h.Write([]byte(contour.Hash(tx.Contour.Points)))
	}
	return h.Sum(nil)
}

// Hash is the hex transaction identifier, stable across signing.
func (tx *Transaction) Hash() string {
	return fmt.Sprintf("%x", tx.SigningBytes())
}

// Sign attaches a signature over the transaction payload using kp. The
// sender address must be the one bound to kp's public key or admission
// will reject the transaction.
func (tx *Transaction) Sign(kp *pqsig.KeyPair) error {
	sig, err := pqsig.Sign(tx.SigningBytes(), kp)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}
