package repos

import (
	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestUpsertAccount() {
	first := s.createTestAccount(1, models.PlatformLinkedIn, "li-1")
	s.NotZero(first.ID)

	// Reconnecting the same external user updates the token in place
	again := &models.SocialAccount{
		OwnerID:        1,
		Platform:       models.PlatformLinkedIn,
		ExternalUserID: "li-1",
		AccessToken:    "fresh-token",
	}
	s.Require().NoError(s.accountRepo.Upsert(s.ctx, again))
	s.Equal(first.ID, again.ID)

	got, err := s.accountRepo.Get(s.ctx, 1, models.PlatformLinkedIn)
	s.Require().NoError(err)
	s.Equal("fresh-token", got.AccessToken)

	accounts, err := s.accountRepo.List(s.ctx, 1, "")
	s.Require().NoError(err)
	s.Len(accounts, 1)
}

func (s *DBRepositoryTestSuite) TestUpsertRejectsInvalid() {
	err := s.accountRepo.Upsert(s.ctx, &models.SocialAccount{
		OwnerID:        1,
		Platform:       models.PlatformInstagram,
		ExternalUserID: "ig",
		AccessToken:    "t",
	})
	s.Error(err)

	err = s.accountRepo.Upsert(s.ctx, &models.SocialAccount{
		OwnerID:        1,
		Platform:       models.PlatformX,
		ExternalUserID: "x-1",
	})
	s.Error(err)
}

func (s *DBRepositoryTestSuite) TestSubAccountLookupIsOwnerScoped() {
	account := s.createTestAccount(1, models.PlatformFacebook, "fb-1")
	s.createTestPages(account, "page-1", "page-2")

	page, err := s.accountRepo.GetSubAccount(s.ctx, 1, "page-1", models.SubAccountFacebookPage)
	s.Require().NoError(err)
	s.Equal("page-token-page-1", page.Token)

	ig, err := s.accountRepo.GetSubAccount(s.ctx, 1, "ig-page-2", models.SubAccountInstagramAccount)
	s.Require().NoError(err)
	s.Equal("page-token-page-2", ig.Token)
	s.Equal("page-2", ig.ParentSubID)

	// Wrong type and wrong owner both miss
	_, err = s.accountRepo.GetSubAccount(s.ctx, 1, "page-1", models.SubAccountInstagramAccount)
	s.ErrorIs(err, gorm.ErrRecordNotFound)
	_, err = s.accountRepo.GetSubAccount(s.ctx, 2, "page-1", models.SubAccountFacebookPage)
	s.ErrorIs(err, gorm.ErrRecordNotFound)

	pages, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountFacebookPage)
	s.Require().NoError(err)
	s.Len(pages, 2)
}

func (s *DBRepositoryTestSuite) TestSubAccountLookupMissesCleanly() {
	// no rows at all: the owner join must still be valid SQL
	_, err := s.accountRepo.GetSubAccount(s.ctx, 1, "ig-1", models.SubAccountInstagramAccount)
	s.ErrorIs(err, gorm.ErrRecordNotFound)

	subs, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountFacebookPage)
	s.Require().NoError(err)
	s.Empty(subs)

	removed, err := s.accountRepo.DeleteSubAccounts(s.ctx, 1, models.SubAccountInstagramAccount)
	s.Require().NoError(err)
	s.Zero(removed)
}

func (s *DBRepositoryTestSuite) TestReplaceSubAccounts() {
	account := s.createTestAccount(1, models.PlatformFacebook, "fb-1")
	s.createTestPages(account, "page-1", "page-2")
	s.createTestPages(account, "page-3")

	pages, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountFacebookPage)
	s.Require().NoError(err)
	s.Require().Len(pages, 1)
	s.Equal("page-3", pages[0].SubID)

	// Another user connecting the same page takes it over
	other := s.createTestAccount(2, models.PlatformFacebook, "fb-2")
	s.createTestPages(other, "page-3")

	_, err = s.accountRepo.GetSubAccount(s.ctx, 1, "page-3", models.SubAccountFacebookPage)
	s.ErrorIs(err, gorm.ErrRecordNotFound)
	_, err = s.accountRepo.GetSubAccount(s.ctx, 2, "page-3", models.SubAccountFacebookPage)
	s.NoError(err)
}

func (s *DBRepositoryTestSuite) TestDeleteAccount() {
	account := s.createTestAccount(1, models.PlatformFacebook, "fb-1")
	s.createTestPages(account, "page-1")
	s.createTestAccount(1, models.PlatformX, "x-1")

	removed, err := s.accountRepo.Delete(s.ctx, 1, models.PlatformFacebook)
	s.Require().NoError(err)
	s.Equal(int64(1), removed)

	_, err = s.accountRepo.Get(s.ctx, 1, models.PlatformFacebook)
	s.ErrorIs(err, gorm.ErrRecordNotFound)
	subs, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountInstagramAccount)
	s.Require().NoError(err)
	s.Empty(subs)

	_, err = s.accountRepo.Get(s.ctx, 1, models.PlatformX)
	s.NoError(err)

	// The same facebook user can reconnect after a hard delete
	s.createTestAccount(1, models.PlatformFacebook, "fb-1")

	removed, err = s.accountRepo.Delete(s.ctx, 3, models.PlatformLinkedIn)
	s.Require().NoError(err)
	s.Zero(removed)
}

func (s *DBRepositoryTestSuite) TestDeleteSubAccounts() {
	account := s.createTestAccount(1, models.PlatformFacebook, "fb-1")
	s.createTestPages(account, "page-1", "page-2")

	removed, err := s.accountRepo.DeleteSubAccounts(s.ctx, 1, models.SubAccountInstagramAccount)
	s.Require().NoError(err)
	s.Equal(int64(2), removed)

	pages, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountFacebookPage)
	s.Require().NoError(err)
	s.Len(pages, 2)
	igs, err := s.accountRepo.ListSubAccounts(s.ctx, 1, models.SubAccountInstagramAccount)
	s.Require().NoError(err)
	s.Empty(igs)
}
