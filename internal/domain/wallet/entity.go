package wallet

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeEarned TransactionType = "EARNED"
	TransactionTypeSpent  TransactionType = "SPENT"
)

// Wallet is the per-user point balance. Version increments by exactly one on
// every committed mutation.
type Wallet struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Metadata is stored as JSONB next to every ledger entry.
type Metadata struct {
	PreviousBalance int64      `json:"previous_balance"`
	NewBalance      int64      `json:"new_balance"`
	ActorID         *uuid.UUID `json:"actor_id,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("wallet metadata: unsupported scan type %T", src)
	}
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	WalletID    uuid.UUID       `db:"wallet_id" json:"wallet_id"`
	Type        TransactionType `db:"type" json:"type"`
	Amount      int64           `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	BenefitID   *uuid.UUID      `db:"benefit_id" json:"benefit_id,omitempty"`
	Metadata    Metadata        `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Receipt is the outcome of a committed credit or debit.
type Receipt struct {
	Wallet      *Wallet      `json:"wallet"`
	Transaction *Transaction `json:"transaction"`
}

// Balance is the wallet snapshot plus the most recent ledger entries.
type Balance struct {
	UserID       uuid.UUID     `json:"user_id"`
	Balance      int64         `json:"balance"`
	Version      int64         `json:"version"`
	Transactions []Transaction `json:"transactions"`
}

type History struct {
	Items []Transaction
	Total int
	Page  int
	Limit int
}

// Reconciliation compares the stored balance to the ledger sum.
type Reconciliation struct {
	UserID     uuid.UUID `json:"user_id"`
	Balance    int64     `json:"balance"`
	Earned     int64     `json:"earned"`
	Spent      int64     `json:"spent"`
	Consistent bool      `json:"consistent"`
}
