package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// AccountRepository handles database operations for connected social accounts
// and the pages and Instagram accounts discovered through them
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of AccountRepository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

// Upsert stores an account keyed by platform and external user id. A
// reconnect refreshes the token and moves the account to the current owner.
func (r *AccountRepository) Upsert(ctx context.Context, account *models.SocialAccount) error {
	if err := models.ValidateOwnerID(account.OwnerID); err != nil {
		return fmt.Errorf("invalid owner_id: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SocialAccount
		err := tx.Where(&models.SocialAccount{
			Platform:       account.Platform,
			ExternalUserID: account.ExternalUserID,
		}).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Omit("SubAccounts").Create(account).Error
		}
		if err != nil {
			return err
		}
		if err := account.Validate(); err != nil {
			return err
		}
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		return tx.Omit("SubAccounts").Save(account).Error
	})
}

// ReplaceSubAccounts swaps the sub-accounts of the given types under an
// account for a fresh set
func (r *AccountRepository) ReplaceSubAccounts(ctx context.Context, accountID uint, types []models.SubAccountType, subs []models.SubAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subIDs := make([]string, 0, len(subs))
		for _, s := range subs {
			subIDs = append(subIDs, s.SubID)
		}
		// A page moved between facebook users keeps its sub_id, so clear it everywhere.
		del := tx.Unscoped().Where("account_id = ? AND type IN ?", accountID, types)
		if len(subIDs) > 0 {
			del = tx.Unscoped().Where("(account_id = ? AND type IN ?) OR sub_id IN ?", accountID, types, subIDs)
		}
		if err := del.Delete(&models.SubAccount{}).Error; err != nil {
			return err
		}
		for i := range subs {
			subs[i].ID = 0
			subs[i].AccountID = accountID
			if err := tx.Create(&subs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves the most recently connected account of an owner on a platform
func (r *AccountRepository) Get(ctx context.Context, ownerID uint, platform models.Platform) (*models.SocialAccount, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var account models.SocialAccount
	if err := r.db.WithContext(ctx).
		Where(&models.SocialAccount{OwnerID: ownerID, Platform: platform}).
		Order("updated_at DESC").
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// List retrieves the accounts of an owner, optionally restricted to one platform
func (r *AccountRepository) List(ctx context.Context, ownerID uint, platform models.Platform) ([]models.SocialAccount, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var accounts []models.SocialAccount
	err := r.db.WithContext(ctx).
		Where(&models.SocialAccount{OwnerID: ownerID, Platform: platform}).
		Preload("SubAccounts").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) ownedSubAccounts(ctx context.Context, ownerID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.SubAccount{}).
		Joins("JOIN social_accounts ON social_accounts.id = social_sub_accounts.account_id").
		Where("social_accounts.owner_id = ? AND social_accounts.deleted_at IS NULL", ownerID)
}

// GetSubAccount retrieves a page or Instagram account the owner connected
func (r *AccountRepository) GetSubAccount(ctx context.Context, ownerID uint, subID string, subType models.SubAccountType) (*models.SubAccount, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var sub models.SubAccount
	if err := r.ownedSubAccounts(ctx, ownerID).
		Where("social_sub_accounts.sub_id = ? AND social_sub_accounts.type = ?", subID, subType).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubAccounts retrieves the sub-accounts of an owner of the given type
func (r *AccountRepository) ListSubAccounts(ctx context.Context, ownerID uint, subType models.SubAccountType) ([]models.SubAccount, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var subs []models.SubAccount
	err := r.ownedSubAccounts(ctx, ownerID).
		Where("social_sub_accounts.type = ?", subType).
		Order("social_sub_accounts.id ASC").
		Find(&subs).Error
	return subs, err
}

// Delete removes every account of an owner on a platform together with its sub-accounts
func (r *AccountRepository) Delete(ctx context.Context, ownerID uint, platform models.Platform) (int64, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return 0, fmt.Errorf("invalid owner_id: %w", err)
	}
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.SocialAccount{}).
			Where(&models.SocialAccount{OwnerID: ownerID, Platform: platform}).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Unscoped().Where("account_id IN ?", ids).Delete(&models.SubAccount{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Where("id IN ?", ids).Delete(&models.SocialAccount{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}

// DeleteSubAccounts removes the sub-accounts of one type owned by ownerID
func (r *AccountRepository) DeleteSubAccounts(ctx context.Context, ownerID uint, subType models.SubAccountType) (int64, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return 0, fmt.Errorf("invalid owner_id: %w", err)
	}
	var ids []uint
	if err := r.ownedSubAccounts(ctx, ownerID).
		Where("social_sub_accounts.type = ?", subType).
		Pluck("social_sub_accounts.id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Delete(&models.SubAccount{})
	return res.RowsAffected, res.Error
}
