package domain

import "time"

// PaymentEntry is the owning record for settlement payment rows. While a
// background sync runs against it, InProgress stays set and every mutating
// operation is rejected.
type PaymentEntry struct {
	EntryID     string    `db:"entry_id"`
	PostingDate time.Time `db:"posting_date"`
	InProgress  bool      `db:"in_progress"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	Items []PaymentItem `db:"-"`
}

// PaymentItem is one settlement row identified by a marketplace order ID.
// Rows with ReadyToProcess still false are the retry candidates.
type PaymentItem struct {
	ItemID          string  `db:"item_id"`
	EntryID         string  `db:"entry_id"`
	OrderID         string  `db:"order_id"`
	TransactionType string  `db:"transaction_type"`
	Total           float64 `db:"total"`
	ReadyToProcess  bool    `db:"ready_to_process"`
	SalesInvoice    string  `db:"sales_invoice"`
	Customer        string  `db:"customer"`
}

// FailedSyncRecord captures an order that could not be synced from the
// marketplace. It is retried one at a time by operator action.
type FailedSyncRecord struct {
	RecordID      string    `db:"record_id"`
	OrderID       string    `db:"order_id"`
	Payload       string    `db:"payload"`
	ReplacedOrder string    `db:"replaced_order"`
	Synced        bool      `db:"synced"`
	LastError     string    `db:"last_error"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// SellerConfig is a marketplace API settings record. The effective target
// configuration is the most recently modified row with IsActive set.
type SellerConfig struct {
	Name       string    `db:"name"`
	IsActive   bool      `db:"is_active"`
	ModifiedAt time.Time `db:"modified_at"`
}

// FetchedOrder is the order state pulled from the marketplace for a
// missing-order sync.
type FetchedOrder struct {
	OrderID      string    `db:"order_id"`
	Status       string    `db:"status"`
	PurchaseDate time.Time `db:"purchase_date"`
	Payload      string    `db:"payload"`
	FetchedAt    time.Time `db:"fetched_at"`
}
