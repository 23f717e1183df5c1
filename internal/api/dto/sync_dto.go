package dto

type PaymentEntryDTO struct {
	EntryID     string           `json:"entry_id"`
	PostingDate string           `json:"posting_date"`
	InProgress  bool             `json:"in_progress"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
	Items       []PaymentItemDTO `json:"items"`
}

type PaymentItemDTO struct {
	ItemID          string  `json:"item_id"`
	OrderID         string  `json:"order_id"`
	TransactionType string  `json:"transaction_type"`
	Total           float64 `json:"total"`
	ReadyToProcess  bool    `json:"ready_to_process"`
	SalesInvoice    string  `json:"sales_invoice,omitempty"`
	Customer        string  `json:"customer,omitempty"`
}

type TriggerSyncResponse struct {
	JobID   string `json:"job_id"`
	EntryID string `json:"entry_id"`
	JobType string `json:"job_type"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

type JobProgressResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

type ListFailedSyncRecordsRequest struct {
	Synced   string `form:"synced"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListFailedSyncRecordsResponse struct {
	Records    []FailedSyncRecordDTO `json:"records"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type FailedSyncRecordDTO struct {
	RecordID      string `json:"record_id"`
	OrderID       string `json:"order_id"`
	ReplacedOrder string `json:"replaced_order,omitempty"`
	Synced        bool   `json:"synced"`
	LastError     string `json:"last_error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type RetryRecordResponse struct {
	RecordID string `json:"record_id"`
	OrderID  string `json:"order_id"`
	Synced   bool   `json:"synced"`
	Error    string `json:"error,omitempty"`
}
