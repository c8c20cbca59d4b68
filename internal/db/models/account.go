package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the account models
const (
	AccountPlatformField   = "platform"
	AccountExternalIDField = "external_user_id"
	SubAccountSubIDField   = "sub_id"
	SubAccountTypeField    = "type"
)

// Table names shared with the SQL migrations
const (
	SocialAccountTable = "social_accounts"
	SubAccountTable    = "social_sub_accounts"
)

// SocialAccount is a user's OAuth connection to one platform
type SocialAccount struct {
	gorm.Model
	OwnerID        uint         `json:"-" gorm:"not null;index"`
	Platform       Platform     `json:"platform" gorm:"not null;size:32;uniqueIndex:idx_account_platform_external"`
	ExternalUserID string       `json:"external_user_id" gorm:"not null;uniqueIndex:idx_account_platform_external"`
	DisplayName    string       `json:"display_name"`
	AccessToken    string       `json:"-" gorm:"type:text;not null"`
	TokenExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	SubAccounts    []SubAccount `json:"sub_accounts,omitempty" gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table so raw joins and the SQL migrations agree with gorm
func (SocialAccount) TableName() string {
	return SocialAccountTable
}

// Validate ensures that the account data is valid
func (a *SocialAccount) Validate() error {
	if _, err := ParsePlatform(string(a.Platform)); err != nil {
		return err
	}
	if a.Platform == PlatformInstagram {
		return fmt.Errorf("instagram accounts are discovered through facebook")
	}
	if a.ExternalUserID == "" {
		return fmt.Errorf("external user id cannot be empty")
	}
	if a.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new account
func (a *SocialAccount) BeforeCreate(_ *gorm.DB) error {
	return a.Validate()
}

// SubAccountType is the kind of entity managed through a parent account
type SubAccountType string

// Sub-account types
const (
	SubAccountFacebookPage     SubAccountType = "facebook_page"
	SubAccountInstagramAccount SubAccountType = "instagram_account"
)

// Platform returns the platform that publishes to this sub-account
func (t SubAccountType) Platform() Platform {
	if t == SubAccountInstagramAccount {
		return PlatformInstagram
	}
	return PlatformFacebook
}

// SubAccountTypeFor returns the sub-account type used by a media platform
func SubAccountTypeFor(p Platform) (SubAccountType, error) {
	switch p {
	case PlatformFacebook:
		return SubAccountFacebookPage, nil
	case PlatformInstagram:
		return SubAccountInstagramAccount, nil
	default:
		return "", fmt.Errorf("platform %q has no sub-accounts", p)
	}
}

// SubAccount is a Facebook page or an Instagram business account. Instagram
// accounts carry the token of the page they are linked to.
type SubAccount struct {
	gorm.Model
	AccountID   uint           `json:"-" gorm:"not null;index"`
	SubID       string         `json:"id" gorm:"not null;uniqueIndex"`
	Name        string         `json:"name"`
	Token       string         `json:"-" gorm:"type:text;not null"`
	Type        SubAccountType `json:"type" gorm:"not null;index;size:32"`
	ImageURL    string         `json:"image_url,omitempty" gorm:"type:text"`
	ParentSubID string         `json:"parent_id,omitempty"`
}

// TableName pins the table so raw joins and the SQL migrations agree with gorm
func (SubAccount) TableName() string {
	return SubAccountTable
}

// Validate ensures that the sub-account data is valid
func (s *SubAccount) Validate() error {
	if s.SubID == "" {
		return fmt.Errorf("sub account id cannot be empty")
	}
	if s.Token == "" {
		return fmt.Errorf("sub account token cannot be empty")
	}
	if s.Type != SubAccountFacebookPage && s.Type != SubAccountInstagramAccount {
		return fmt.Errorf("invalid sub account type: %s", s.Type)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new sub-account
func (s *SubAccount) BeforeCreate(_ *gorm.DB) error {
	return s.Validate()
}
