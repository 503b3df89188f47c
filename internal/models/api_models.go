package models

// CreateIntentRequest starts an on-ramp payment.
type CreateIntentRequest struct {
	Amount        string `json:"amount" binding:"required"` // stablecoin amount
	Currency      string `json:"currency" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"required"`
	TokenSymbol   string `json:"token_symbol" binding:"required"`
	TokenAddress  string `json:"token_address"`
	FiatAmount    string `json:"fiat_amount"`
}

// CreateIntentResponse mirrors the processor intent plus the local record.
type CreateIntentResponse struct {
	PaymentIntentID  string `json:"paymentIntentId"`
	ClientSecret     string `json:"clientSecret"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	AmountStablecoin string `json:"amountStablecoin"`
	TokenSymbol      string `json:"tokenSymbol"`
	ExchangeRate     string `json:"exchangeRate"`
	WalletAddress    string `json:"walletAddress"`
	Status           string `json:"status"`
}

// CashoutRequest asks for a bank payout backed by an already-settled
// on-chain transfer.
type CashoutRequest struct {
	EmployeeAddress string `json:"employeeAddress" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	Currency        string `json:"currency" binding:"required"`
	BankAccountID   string `json:"bankAccountId" binding:"required"`
	TxHash          string `json:"txHash" binding:"required"`
	TokenAddress    string `json:"tokenAddress"`
}

// LogActivityRequest is the client-side activity write, issued right
// after a client-signed send, before settlement confirmation.
type LogActivityRequest struct {
	WalletAddress   string `json:"wallet_address" binding:"required"`
	ActivityType    string `json:"activity_type" binding:"required"`
	TokenAddress    string `json:"token_address"`
	TokenSymbol     string `json:"token_symbol"`
	Amount          string `json:"amount" binding:"required"`
	AmountFiat      string `json:"amount_fiat"`
	Currency        string `json:"currency"`
	ToAddress       string `json:"to_address"`
	FromAddress     string `json:"from_address"`
	TxHash          string `json:"tx_hash"`
	PaymentIntentID string `json:"payment_intent_id"`
	PayoutID        string `json:"payout_id"`
	Status          string `json:"status"`
	Memo            string `json:"memo"`
}

// ActivityItem is one entry of the unified feed.
type ActivityItem struct {
	Kind          string  `json:"kind"`      // transfer | payment | cashout
	Direction     string  `json:"direction"` // send | receive | deposit | withdraw
	TokenAddress  string  `json:"tokenAddress,omitempty"`
	AmountRaw     string  `json:"amountRaw,omitempty"`
	Amount        string  `json:"amount,omitempty"` // human display units
	Decimals      uint8   `json:"decimals,omitempty"`
	Counterparty  string  `json:"counterparty,omitempty"`
	AmountFiat    string  `json:"amountFiat,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	TxHash        string  `json:"txHash,omitempty"`
	BlockNumber   uint64  `json:"blockNumber,omitempty"`
	Timestamp     *int64  `json:"timestamp"`
	Memo          *string `json:"memo,omitempty"`
	EventName     string  `json:"eventName,omitempty"`
	Status        string  `json:"status,omitempty"`
	PaymentIntent string  `json:"paymentIntentId,omitempty"`
	BankAccountID string  `json:"bankAccountId,omitempty"`
}
