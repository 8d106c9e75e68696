package ledger

import "time"

type EntryType string

const (
	Deposit  EntryType = "DEPOSIT"
	Refund   EntryType = "REFUND"
	Purchase EntryType = "PURCHASE"
)

// Entry is one immutable money movement. Amount is always positive; the type gives the sign.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        EntryType `json:"type"`
	Amount      int64     `json:"amount"`
	OrderID     string    `json:"orderId,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e Entry) Signed() int64 {
	if e.Type == Purchase {
		return -e.Amount
	}
	return e.Amount
}

// Balance folds entries: deposits and refunds minus purchases.
func Balance(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Signed()
	}
	return total
}

// Decision remembers a purchase message that was settled without a PURCHASE row.
type Decision struct {
	Key       string
	OrderID   string
	Outcome   string
	CreatedAt time.Time
}

const (
	OutcomeRejected = "insufficient_funds"
	OutcomeFree     = "free"
)
