package services

import (
	"errors"
	"strings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
)

func (s *ServiceTestSuite) TestLookup() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.connectUser(testOwner, models.PlatformLinkedIn, "li-1")

	tests := []struct {
		name     string
		owner    uint
		platform models.Platform
		ref      string
		want     platform.Credential
		err      error
	}{
		{name: "instagram uses the page token", owner: testOwner, platform: models.PlatformInstagram, ref: testIGAccount,
			want: platform.Credential{AccountRef: testIGAccount, Token: "page-token-" + testPageID}},
		{name: "facebook page", owner: testOwner, platform: models.PlatformFacebook, ref: testPageID,
			want: platform.Credential{AccountRef: testPageID, Token: "page-token-" + testPageID}},
		{name: "page id is not an instagram account", owner: testOwner, platform: models.PlatformInstagram, ref: testPageID, err: ErrAccountNotFound},
		{name: "media platforms need a ref", owner: testOwner, platform: models.PlatformFacebook, err: ErrAccountNotFound},
		{name: "linkedin defaults to the user", owner: testOwner, platform: models.PlatformLinkedIn,
			want: platform.Credential{AccountRef: "li-1", Token: "token-li-1"}},
		{name: "linkedin wrong user", owner: testOwner, platform: models.PlatformLinkedIn, ref: "li-2", err: ErrAccountNotFound},
		{name: "x not connected", owner: testOwner, platform: models.PlatformX, err: ErrAccountNotFound},
		{name: "other owner", owner: otherOwner, platform: models.PlatformInstagram, ref: testIGAccount, err: ErrAccountNotFound},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			cred, err := s.accounts.Lookup(s.ctx, tt.owner, tt.platform, tt.ref)
			if tt.err != nil {
				assert.ErrorIs(s.T(), err, tt.err)
				return
			}
			require.NoError(s.T(), err)
			assert.Equal(s.T(), tt.want, cred)
		})
	}
}

func (s *ServiceTestSuite) TestListAccounts() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.connectUser(testOwner, models.PlatformX, "x-1")
	s.connectUser(otherOwner, models.PlatformX, "x-2")

	all, err := s.accounts.List(s.ctx, testOwner, "", "")
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 4)

	igs, err := s.accounts.List(s.ctx, testOwner, models.PlatformInstagram, "")
	require.NoError(s.T(), err)
	require.Len(s.T(), igs, 1)
	assert.Equal(s.T(), testIGAccount, igs[0].ID)
	assert.Equal(s.T(), testPageID, igs[0].ParentID)

	pages, err := s.accounts.List(s.ctx, testOwner, "", string(models.SubAccountFacebookPage))
	require.NoError(s.T(), err)
	require.Len(s.T(), pages, 1)
	assert.Equal(s.T(), testPageID, pages[0].ID)

	none, err := s.accounts.List(s.ctx, testOwner, models.PlatformLinkedIn, "")
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), none)
	assert.Empty(s.T(), none)
}

func (s *ServiceTestSuite) TestStatusAndDisconnect() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)

	for _, p := range []models.Platform{models.PlatformFacebook, models.PlatformInstagram} {
		status, err := s.accounts.Status(s.ctx, testOwner, p)
		require.NoError(s.T(), err)
		assert.True(s.T(), status.Connected, p)
	}
	status, err := s.accounts.Status(s.ctx, testOwner, models.PlatformX)
	require.NoError(s.T(), err)
	assert.False(s.T(), status.Connected)

	resp, err := s.accounts.Disconnect(s.ctx, testOwner, models.PlatformInstagram)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), resp.Removed)

	status, err = s.accounts.Status(s.ctx, testOwner, models.PlatformInstagram)
	require.NoError(s.T(), err)
	assert.False(s.T(), status.Connected)
	status, err = s.accounts.Status(s.ctx, testOwner, models.PlatformFacebook)
	require.NoError(s.T(), err)
	assert.True(s.T(), status.Connected, "disconnecting instagram keeps the facebook pages")

	_, err = s.accounts.Disconnect(s.ctx, testOwner, models.PlatformFacebook)
	require.NoError(s.T(), err)
	_, err = s.accounts.Lookup(s.ctx, testOwner, models.PlatformFacebook, testPageID)
	assert.ErrorIs(s.T(), err, ErrAccountNotFound)
}

func (s *ServiceTestSuite) TestPostText() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.connectUser(testOwner, models.PlatformX, "x-1")

	resp, err := s.accounts.PostText(s.ctx, testOwner, models.PlatformFacebook, testPageID, "hello page")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.PlatformFacebook, resp.Platform)
	assert.True(s.T(), strings.HasPrefix(resp.PostID, testPageID+"_"))

	invalid := []struct {
		name     string
		platform models.Platform
		ref      string
		message  string
		field    string
	}{
		{name: "empty message", platform: models.PlatformFacebook, ref: testPageID, message: "  ", field: "message"},
		{name: "tweet too long", platform: models.PlatformX, message: strings.Repeat("x", platform.MaxTweetLength+1), field: "message"},
		{name: "instagram has no text posts", platform: models.PlatformInstagram, ref: testIGAccount, message: "hi", field: "platform"},
	}
	for _, tt := range invalid {
		s.Run(tt.name, func() {
			_, err := s.accounts.PostText(s.ctx, testOwner, tt.platform, tt.ref, tt.message)
			var verr *pipeline.ValidationError
			require.True(s.T(), errors.As(err, &verr), "got %v", err)
			assert.Equal(s.T(), tt.field, verr.Field)
		})
	}

	_, err = s.accounts.PostText(s.ctx, testOwner, models.PlatformLinkedIn, "", "hello")
	assert.ErrorIs(s.T(), err, ErrAccountNotFound)
}
