package account

import (
	"context"
	"errors"

	"github.com/vdklabs/license-server/config"
	"github.com/vdklabs/license-server/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service is the credential store: it owns account rows and the password
// hashes in them. Hardware-id writes are single-column updates so they never
// race with subscription writes on the same row.
type Service struct {
	db     *gorm.DB
	cfg    config.LicenseConfig
	logger *zap.Logger
}

// NewService creates an account Service.
func NewService(db *gorm.DB, cfg config.LicenseConfig, logger *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, logger: logger}
}

// Create registers a new account, storing only the bcrypt hash of the
// password. Length policy comes from config, not constants.
func (svc *Service) Create(ctx context.Context, username, password string) (*model.Account, error) {
	if len(username) < svc.cfg.MinUsernameLen || len(password) < svc.cfg.MinPasswordLen {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, err
	}

	acc := &model.Account{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := svc.db.WithContext(ctx).Create(acc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	svc.logger.Info("account created", zap.Int64("account_id", acc.ID), zap.String("username", username))
	return acc, nil
}

// Verify checks a username/password pair. Unknown username and wrong
// password both return ErrAuthFailure.
func (svc *Service) Verify(ctx context.Context, username, password string) (*model.Account, error) {
	var acc model.Account
	err := svc.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthFailure
	}
	return &acc, nil
}

// Get looks up an account by ID.
func (svc *Service) Get(ctx context.Context, id int64) (*model.Account, error) {
	var acc model.Account
	err := svc.db.WithContext(ctx).First(&acc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// List returns all accounts ordered by ID.
func (svc *Service) List(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := svc.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// Delete removes an account. Keys the account redeemed keep their
// historical redeemed_by reference.
func (svc *Service) Delete(ctx context.Context, id int64) error {
	result := svc.db.WithContext(ctx).Delete(&model.Account{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHardwareID binds a hardware identifier to the account. Single-column
// update only.
func (svc *Service) SetHardwareID(ctx context.Context, id int64, hwid string) error {
	return svc.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Update("hardware_id", hwid).Error
}

// ClearHardwareID unbinds the account's hardware lock. Idempotent.
func (svc *Service) ClearHardwareID(ctx context.Context, id int64) error {
	return svc.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Update("hardware_id", nil).Error
}
