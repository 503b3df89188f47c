package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ToanBm/cross-flow/internal/models"
)

// ErrNotFound is returned for lookups with no matching row.
var ErrNotFound = gorm.ErrRecordNotFound

// Store is the single storage port. The backend (embedded sqlite file or
// networked postgres) is chosen once at Open; nothing above this package
// branches on it.
type Store struct {
	db *gorm.DB
}

// Open connects the configured backend and runs migrations.
// driver is "sqlite" or "postgres"; dsn is a file path or a postgres DSN.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewStore(conn)
}

// NewStore wraps an existing gorm connection (tests use this with an
// in-memory sqlite database).
func NewStore(conn *gorm.DB) (*Store, error) {
	if err := conn.AutoMigrate(
		&models.SyncWatermark{},
		&models.Transfer{},
		&models.Payment{},
		&models.Cashout{},
		&models.ActivityHistory{},
		&models.Recipient{},
		&models.BankAccount{},
		&models.Feedback{},
	); err != nil {
		return nil, err
	}
	return &Store{db: conn}, nil
}

// Ping verifies the underlying connection.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ---- sync watermarks ----

// GetWatermark returns the last fully-scanned block for a (user, token)
// pair, 0 when the pair has never been synced.
func (s *Store) GetWatermark(userAddress, tokenAddress string) (uint64, error) {
	var wm models.SyncWatermark
	err := s.db.Where("user_address = ? AND token_address = ?",
		strings.ToLower(userAddress), strings.ToLower(tokenAddress)).First(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wm.LastSyncedBlock, nil
}

// SetWatermark advances the watermark for a pair. The stored value only
// ever increases; a lower block is a no-op.
func (s *Store) SetWatermark(userAddress, tokenAddress string, block uint64) error {
	user := strings.ToLower(userAddress)
	token := strings.ToLower(tokenAddress)

	res := s.db.Model(&models.SyncWatermark{}).
		Where("user_address = ? AND token_address = ? AND last_synced_block < ?", user, token, block).
		Update("last_synced_block", block)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing models.SyncWatermark
	err := s.db.Where("user_address = ? AND token_address = ?", user, token).First(&existing).Error
	if err == nil {
		return nil // row exists at an equal or higher block
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(&models.SyncWatermark{
		UserAddress:     user,
		TokenAddress:    token,
		LastSyncedBlock: block,
	}).Error
}

// ---- transfers ----

// UpsertTransfers inserts decoded transfer rows. (tx_hash, log_index)
// conflicts only backfill a null memo or timestamp; amounts and
// addresses are never rewritten.
func (s *Store) UpsertTransfers(rows []models.Transfer) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"memo":            gorm.Expr("COALESCE(excluded.memo, transfers.memo)"),
			"block_timestamp": gorm.Expr("COALESCE(excluded.block_timestamp, transfers.block_timestamp)"),
		}),
	}).Create(&rows).Error
}

// TransfersForAddress lists transfers touching an address, newest first.
func (s *Store) TransfersForAddress(address string, limit int) ([]models.Transfer, error) {
	a := strings.ToLower(address)
	var rows []models.Transfer
	err := s.db.Where("from_address = ? OR to_address = ?", a, a).
		Order("block_number DESC").Order("log_index DESC").
		Limit(limit).Find(&rows).Error
	return rows, err
}

// ---- payments ----

func (s *Store) CreatePayment(p *models.Payment) error {
	p.WalletAddress = strings.ToLower(p.WalletAddress)
	return s.db.Create(p).Error
}

func (s *Store) GetPaymentByIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.Where("payment_intent_id = ?", intentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePayment applies a partial status update by record id.
func (s *Store) UpdatePayment(id uint, updates map[string]interface{}) error {
	return s.db.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) PaymentsForAddress(address string, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := s.db.Where("wallet_address = ?", strings.ToLower(address)).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CompletedPaymentsWithUnpatchedActivity finds completed payments whose
// activity row still lacks the settled tx hash, for the operator
// reconcile sweep.
func (s *Store) CompletedPaymentsWithUnpatchedActivity() ([]models.Payment, error) {
	var rows []models.Payment
	err := s.db.
		Where("status = ? AND tx_hash <> ''", models.PaymentStatusCompleted).
		Where("payment_intent_id IN (?)",
			s.db.Model(&models.ActivityHistory{}).Select("payment_intent_id").
				Where("payment_intent_id <> '' AND (tx_hash = '' OR tx_hash IS NULL)")).
		Find(&rows).Error
	return rows, err
}

// ---- cashouts ----

func (s *Store) CreateCashout(c *models.Cashout) error {
	c.EmployeeAddress = strings.ToLower(c.EmployeeAddress)
	c.TxHashOnchain = strings.ToLower(c.TxHashOnchain)
	return s.db.Create(c).Error
}

func (s *Store) GetCashoutByPayoutID(payoutID string) (*models.Cashout, error) {
	var c models.Cashout
	err := s.db.Where("payout_id = ?", payoutID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCashoutByTxHash(txHash string) (*models.Cashout, error) {
	var c models.Cashout
	err := s.db.Where("tx_hash_onchain = ?", strings.ToLower(txHash)).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCashout(id uint, updates map[string]interface{}) error {
	return s.db.Model(&models.Cashout{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) CashoutsForAddress(address string, limit int) ([]models.Cashout, error) {
	var rows []models.Cashout
	err := s.db.Where("employee_address = ?", strings.ToLower(address)).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ---- activity history ----

func (s *Store) SaveActivity(a *models.ActivityHistory) error {
	a.WalletAddress = strings.ToLower(a.WalletAddress)
	return s.db.Create(a).Error
}

func (s *Store) ActivityForWallet(address string, limit, offset int) ([]models.ActivityHistory, int64, error) {
	a := strings.ToLower(address)
	var total int64
	if err := s.db.Model(&models.ActivityHistory{}).
		Where("wallet_address = ?", a).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.ActivityHistory
	err := s.db.Where("wallet_address = ?", a).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

// PatchActivityByIntentID writes the settled tx hash and status onto the
// activity rows correlated with a payment intent. Best-effort side
// write; settlement does not roll back on its failure.
func (s *Store) PatchActivityByIntentID(intentID, txHash, status string) error {
	return s.db.Model(&models.ActivityHistory{}).
		Where("payment_intent_id = ?", intentID).
		Updates(map[string]interface{}{
			"tx_hash":    strings.ToLower(txHash),
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// ---- recipients / bank accounts / feedback ----

func (s *Store) RecipientsForOwner(owner string) ([]models.Recipient, error) {
	var rows []models.Recipient
	err := s.db.Where("owner_address = ?", strings.ToLower(owner)).
		Order("name ASC").Find(&rows).Error
	return rows, err
}

func (s *Store) CreateRecipient(r *models.Recipient) error {
	r.OwnerAddress = strings.ToLower(r.OwnerAddress)
	r.Address = strings.ToLower(r.Address)
	return s.db.Create(r).Error
}

func (s *Store) UpdateRecipient(id uint, owner string, updates map[string]interface{}) error {
	res := s.db.Model(&models.Recipient{}).
		Where("id = ? AND owner_address = ?", id, strings.ToLower(owner)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteRecipient(id uint, owner string) error {
	res := s.db.Where("id = ? AND owner_address = ?", id, strings.ToLower(owner)).
		Delete(&models.Recipient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) BankAccountsForEmail(email string) ([]models.BankAccount, error) {
	var rows []models.BankAccount
	err := s.db.Where("user_email = ?", strings.ToLower(email)).Find(&rows).Error
	return rows, err
}

// UpsertBankAccount inserts or refreshes a bank-account link by its
// processor reference.
func (s *Store) UpsertBankAccount(b *models.BankAccount) error {
	b.UserEmail = strings.ToLower(b.UserEmail)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bank_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_email", "bank_name", "last4", "currency", "updated_at",
		}),
	}).Create(b).Error
}

func (s *Store) CreateFeedback(f *models.Feedback) error {
	return s.db.Create(f).Error
}
