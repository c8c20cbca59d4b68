package services

import (
	"net/url"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/test/mocks"
)

func (s *ServiceTestSuite) TestConnectFacebook() {
	consent, err := s.connections.Start(s.ctx, testOwner, models.PlatformFacebook)
	require.NoError(s.T(), err)
	u, err := url.Parse(consent)
	require.NoError(s.T(), err)
	state := u.Query().Get("state")
	require.NotEmpty(s.T(), state)

	resp, err := s.connections.Callback(s.ctx, models.PlatformFacebook, state, "auth-code")
	require.NoError(s.T(), err)
	assert.True(s.T(), resp.Connected)
	assert.Equal(s.T(), mocks.GraphUserName, resp.DisplayName)
	assert.Equal(s.T(), 2, resp.SubAccounts)

	account, err := s.accountRepo.Get(s.ctx, testOwner, models.PlatformFacebook)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), mocks.GraphUserID, account.ExternalUserID)
	assert.Equal(s.T(), mocks.GraphLongToken, account.AccessToken, "the long-lived token is stored")
	assert.NotNil(s.T(), account.TokenExpiresAt)

	cred, err := s.accounts.Lookup(s.ctx, testOwner, models.PlatformInstagram, mocks.GraphInstagramID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), mocks.GraphPageToken, cred.Token)

	igs, err := s.accounts.List(s.ctx, testOwner, models.PlatformInstagram, "")
	require.NoError(s.T(), err)
	require.Len(s.T(), igs, 1)
	assert.Equal(s.T(), mocks.GraphPageID, igs[0].ParentID)

	_, err = s.connections.Callback(s.ctx, models.PlatformFacebook, state, "auth-code")
	assert.ErrorIs(s.T(), err, oauth.ErrTicketNotFound, "a callback cannot be replayed")
}

func (s *ServiceTestSuite) TestConnectRejects() {
	_, err := s.connections.Start(s.ctx, 0, models.PlatformFacebook)
	assert.ErrorIs(s.T(), err, models.ErrInvalidOwnerID)

	_, err = s.connections.Start(s.ctx, testOwner, models.PlatformLinkedIn)
	assert.ErrorIs(s.T(), err, oauth.ErrProviderDisabled)

	_, err = s.connections.Callback(s.ctx, models.PlatformFacebook, "forged", "code")
	assert.ErrorIs(s.T(), err, oauth.ErrTicketNotFound)
}
