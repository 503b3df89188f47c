package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment statuses. A payment with a tx hash or status "completed" is
// terminal and must never be re-processed.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCanceled   = "canceled"
)

// Cashout statuses.
const (
	CashoutStatusPending  = "pending"
	CashoutStatusPaid     = "paid"
	CashoutStatusFailed   = "failed"
	CashoutStatusCanceled = "canceled"
)

// Activity statuses and kinds.
const (
	ActivityStatusPending = "pending"
	ActivityStatusSuccess = "success"
	ActivityStatusFailed  = "failed"

	ActivityTypeSend     = "send"
	ActivityTypeDeposit  = "deposit"
	ActivityTypeWithdraw = "withdraw"
)

// Transfer event kinds.
const (
	EventTransfer         = "Transfer"
	EventTransferWithMemo = "TransferWithMemo"
)

// SyncWatermark records the last fully-scanned block for a
// (user, token) pair. One row per pair; the block never decreases.
type SyncWatermark struct {
	gorm.Model
	UserAddress     string `gorm:"uniqueIndex:idx_user_token;size:42"`
	TokenAddress    string `gorm:"uniqueIndex:idx_user_token;size:42"`
	LastSyncedBlock uint64
}

// Transfer is an immutable decoded ledger event. (TxHash, LogIndex) is
// unique; re-ingesting the same log only backfills a null memo/timestamp.
type Transfer struct {
	gorm.Model
	TokenAddress   string `gorm:"index;size:42"`
	FromAddress    string `gorm:"index;size:42"`
	ToAddress      string `gorm:"index;size:42"`
	AmountRaw      string `gorm:"size:80"` // raw integer units, never a float
	Decimals       uint8
	Memo           *string `gorm:"size:66"`
	TxHash         string  `gorm:"uniqueIndex:idx_tx_log;size:66"`
	LogIndex       uint    `gorm:"uniqueIndex:idx_tx_log"`
	BlockNumber    uint64  `gorm:"index"`
	BlockTimestamp *int64
	EventName      string `gorm:"size:20"`
}

// Payment is an on-ramp record keyed by the processor's intent id.
type Payment struct {
	gorm.Model
	PaymentIntentID string `gorm:"uniqueIndex;size:64"`
	WalletAddress   string `gorm:"index;size:42"`
	AmountFiat      string `gorm:"size:32"`
	FiatCurrency    string `gorm:"size:8"`
	// Stablecoin amount. Column keeps the legacy name from the first
	// deployment, when USDT was the only token.
	AmountUSDT   string `gorm:"column:amount_usdt;size:32"`
	ExchangeRate string `gorm:"size:32"`
	TokenSymbol  string `gorm:"size:16"`
	TokenAddress string `gorm:"size:42"`
	Status       string `gorm:"size:16;default:'pending'"`
	TxHash       string `gorm:"size:66"`
	BlockNumber  uint64
	ErrorMessage string
	CompletedAt  *time.Time
}

// Cashout is an off-ramp payout record. The on-chain leg (the user's
// outbound transfer) happens before the payout is requested, so
// TxHashOnchain is immutable from creation.
type Cashout struct {
	gorm.Model
	EmployeeAddress string `gorm:"index;size:42"`
	AmountUSDT      string `gorm:"column:amount_usdt;size:32"`
	FiatCurrency    string `gorm:"size:8"`
	FiatAmount      string `gorm:"size:32"`
	ExchangeRate    string `gorm:"size:32"`
	TxHashOnchain   string `gorm:"uniqueIndex;size:66"`
	PayoutID        string `gorm:"index;size:64"`
	BankAccountID   string `gorm:"size:64"`
	Status          string `gorm:"size:16;default:'pending'"`
	ErrorMessage    string
	CompletedAt     *time.Time
}

// ActivityHistory is the denormalized, user-facing projection written by
// the client at action time. The settlement path patches it with the real
// tx hash once known, matching on PaymentIntentID.
type ActivityHistory struct {
	gorm.Model
	WalletAddress   string `gorm:"index;size:42"`
	ActivityType    string `gorm:"size:16"` // send | deposit | withdraw
	TokenAddress    string `gorm:"size:42"`
	TokenSymbol     string `gorm:"size:16"`
	Amount          string `gorm:"size:32"`
	AmountFiat      string `gorm:"size:32"`
	Currency        string `gorm:"size:8"`
	ToAddress       string `gorm:"size:42"`
	FromAddress     string `gorm:"size:42"`
	TxHash          string `gorm:"size:66"`
	PaymentIntentID string `gorm:"index;size:64"`
	PayoutID        string `gorm:"size:64"`
	Status          string `gorm:"size:16;default:'pending'"`
	Memo            string `gorm:"size:128"`
}

// Recipient is a saved send target.
type Recipient struct {
	gorm.Model
	OwnerAddress string `gorm:"index;size:42"`
	Name         string `gorm:"size:64"`
	Address      string `gorm:"size:42"`
	Email        string `gorm:"size:128"`
}

// BankAccount links a user email to a processor bank-account reference.
type BankAccount struct {
	gorm.Model
	UserEmail     string `gorm:"index;size:128"`
	BankAccountID string `gorm:"uniqueIndex;size:64"`
	BankName      string `gorm:"size:64"`
	Last4         string `gorm:"size:4"`
	Currency      string `gorm:"size:8"`
}

// Feedback is a free-form user note.
type Feedback struct {
	gorm.Model
	WalletAddress string `gorm:"size:42"`
	Email         string `gorm:"size:128"`
	Message       string `gorm:"size:2000"`
}
