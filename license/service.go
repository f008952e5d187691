package license

import (
	"context"
	"errors"
	"time"

	"github.com/vdklabs/license-server/account"
	"github.com/vdklabs/license-server/cache"
	"github.com/vdklabs/license-server/config"
	"github.com/vdklabs/license-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// issueRetries bounds code regeneration on unique-index collisions.
const issueRetries = 5

// Grant is the subscription state written by a successful redemption.
type Grant struct {
	Type      string    `json:"subscription_type"`
	ExpiresAt time.Time `json:"expires"`
}

// BindingResult reports the outcome of a hardware authorization.
type BindingResult struct {
	HardwareID string
	NewlyBound bool
}

// SubscriptionInfo is the evaluated subscription state returned to clients.
type SubscriptionInfo struct {
	Type    *string    `json:"type"`
	Expires *time.Time `json:"expires"`
	Active  bool       `json:"active"`
}

// LauncherDecision is the answer to "may this machine run".
type LauncherDecision struct {
	Account         *model.Account
	HasSubscription bool
	Subscription    SubscriptionInfo
	HardwareID      string
}

// Service owns the key registry, the redemption engine, the hardware
// binding rules and the launcher authorization entry points.
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	accounts *account.Service
	cfg      config.LicenseConfig
	logger   *zap.Logger
}

// NewService creates a license Service.
func NewService(db *gorm.DB, c cache.Cache, accounts *account.Service, cfg config.LicenseConfig, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, accounts: accounts, cfg: cfg, logger: logger}
}

// IssueKey creates a new single-use activation key. Code collisions are
// resolved by regenerating; the unique index is the source of truth.
func (svc *Service) IssueKey(ctx context.Context, subType string, durationDays int) (*model.ActivationKey, error) {
	prefix := svc.cfg.KeyPrefix
	if prefix == "" {
		prefix = "VDK"
	}
	for i := 0; i < issueRetries; i++ {
		code, err := generateCode(prefix)
		if err != nil {
			return nil, err
		}
		key := &model.ActivationKey{
			Code:             code,
			SubscriptionType: subType,
			DurationDays:     durationDays,
		}
		err = svc.db.WithContext(ctx).Create(key).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		svc.logger.Info("key issued",
			zap.String("code", code),
			zap.String("subscription_type", subType),
			zap.Int("duration_days", durationDays))
		return key, nil
	}
	return nil, ErrDuplicateKey
}

// ListKeys returns all keys, newest first.
func (svc *Service) ListKeys(ctx context.Context) ([]model.ActivationKey, error) {
	var keys []model.ActivationKey
	if err := svc.db.WithContext(ctx).Order("id DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Redeem consumes an activation key and overwrites the account's
// subscription with a grant computed from now. The key claim and the grant
// commit in one transaction: no observer sees one without the other, and of
// N racing attempts on the same code exactly one succeeds.
func (svc *Service) Redeem(ctx context.Context, code string, accountID int64, now time.Time) (*Grant, error) {
	// Fast-path lock so concurrent attempts on one code don't all reach the
	// database. Correctness does not depend on it: the conditional claim
	// update below is the tie-break.
	lockKey := "lock:redeem:" + code
	if ok, err := svc.cache.SetNX(ctx, lockKey, "1", svc.cfg.RedeemLockTTL); err == nil && ok {
		defer svc.cache.Del(ctx, lockKey)
	}

	var grant *Grant
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var key model.ActivationKey
		if err := tx.Where("code = ?", code).First(&key).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		if key.Redeemed {
			return ErrKeyAlreadyUsed
		}

		if err := tx.First(&model.Account{}, accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return account.ErrNotFound
			}
			return err
		}

		// Claim the key. The redeemed = false guard makes the transition
		// single-winner under concurrent redemption.
		claim := tx.Model(&model.ActivationKey{}).
			Where("id = ? AND redeemed = ?", key.ID, false).
			Updates(map[string]interface{}{
				"redeemed":    true,
				"redeemed_by": accountID,
				"redeemed_at": now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrKeyAlreadyUsed
		}

		expires := ComputeExpiry(key.SubscriptionType, key.DurationDays, now)
		if err := tx.Model(&model.Account{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"subscription_type":    key.SubscriptionType,
				"subscription_expires": expires,
			}).Error; err != nil {
			return err
		}

		grant = &Grant{Type: key.SubscriptionType, ExpiresAt: expires}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info("key redeemed",
		zap.String("code", code),
		zap.Int64("account_id", accountID),
		zap.String("subscription_type", grant.Type),
		zap.Time("expires", grant.ExpiresAt))
	return grant, nil
}

// AuthorizeHardware enforces the per-account hardware lock. An unbound
// account binds to the presented hwid on first use; a bound account only
// accepts its stored hwid. The lock is per-account: nothing stops two
// accounts from binding the same machine.
func (svc *Service) AuthorizeHardware(ctx context.Context, acc *model.Account, hwid string) (BindingResult, error) {
	if acc.HardwareID == nil {
		if err := svc.accounts.SetHardwareID(ctx, acc.ID, hwid); err != nil {
			return BindingResult{}, err
		}
		acc.HardwareID = &hwid
		svc.logger.Info("hardware bound",
			zap.Int64("account_id", acc.ID),
			zap.String("hwid", hwid))
		return BindingResult{HardwareID: hwid, NewlyBound: true}, nil
	}
	if *acc.HardwareID != hwid {
		return BindingResult{}, ErrHardwareMismatch
	}
	return BindingResult{HardwareID: hwid}, nil
}

// ResetHardware forces the account back to unbound. Idempotent.
func (svc *Service) ResetHardware(ctx context.Context, accountID int64) error {
	return svc.accounts.ClearHardwareID(ctx, accountID)
}

// LauncherAuthenticate runs the launcher cold-start gates in order:
// credentials, then hardware binding, then subscription evaluation. A
// hardware mismatch short-circuits before any subscription detail is
// computed.
func (svc *Service) LauncherAuthenticate(ctx context.Context, username, password, hwid string, now time.Time) (*LauncherDecision, error) {
	acc, err := svc.accounts.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}

	binding, err := svc.AuthorizeHardware(ctx, acc, hwid)
	if err != nil {
		return nil, err
	}

	active := Active(acc.SubscriptionType, acc.SubscriptionExpires, now)
	return &LauncherDecision{
		Account:         acc,
		HasSubscription: active,
		Subscription: SubscriptionInfo{
			Type:    acc.SubscriptionType,
			Expires: acc.SubscriptionExpires,
			Active:  active,
		},
		HardwareID: binding.HardwareID,
	}, nil
}

// CheckByID reports subscription status for an already-authenticated
// launcher without re-verifying credentials or touching the hardware lock.
func (svc *Service) CheckByID(ctx context.Context, accountID int64, now time.Time) (*LauncherDecision, error) {
	acc, err := svc.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	active := Active(acc.SubscriptionType, acc.SubscriptionExpires, now)
	return &LauncherDecision{
		Account:         acc,
		HasSubscription: active,
		Subscription: SubscriptionInfo{
			Type:    acc.SubscriptionType,
			Expires: acc.SubscriptionExpires,
			Active:  active,
		},
	}, nil
}

// CountExpired returns how many accounts hold a dated subscription that has
// lapsed as of now. Used by the periodic sweep for reporting only; expiry
// itself is evaluated live, never stored.
func (svc *Service) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.Account{}).
		Where("subscription_type IS NOT NULL AND subscription_type <> ? AND subscription_expires <= ?", TypeLifetime, now).
		Count(&n).Error
	return n, err
}
