// Package models defines the database models
package models

import (
	"errors"
	"fmt"
)

const (
	// DefaultLimit is the max number of rows that are retrieved from the DB per listing API call
	DefaultLimit = 50
)

// ErrInvalidOwnerID is returned when a repository call is made without an owner
var ErrInvalidOwnerID = errors.New("owner_id cannot be 0")

// ListOptions represents pagination and filtering options for list operations
type ListOptions struct {
	Limit    int       `json:"limit"`  // Number of items to return
	Offset   int       `json:"offset"` // Number of items to skip
	State    *JobState `json:"state,omitempty"`
	Platform Platform  `json:"platform,omitempty"`
}

// ValidateOwnerID rejects the zero owner id. Every row is scoped to the user
// that created it.
func ValidateOwnerID(ownerID uint) error {
	if ownerID == 0 {
		return ErrInvalidOwnerID
	}
	return nil
}

// Platform identifies a social network
type Platform string

// Supported platforms
const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
)

// ParsePlatform converts a string to a Platform
func ParsePlatform(str string) (Platform, error) {
	switch Platform(str) {
	case PlatformFacebook, PlatformInstagram, PlatformLinkedIn, PlatformX:
		return Platform(str), nil
	case "twitter":
		return PlatformX, nil
	default:
		return "", fmt.Errorf("invalid platform: %s", str)
	}
}

// SupportsMedia reports whether the platform goes through the container
// publish pipeline
func (p Platform) SupportsMedia() bool {
	return p == PlatformFacebook || p == PlatformInstagram
}

// String returns the platform name
func (p Platform) String() string {
	return string(p)
}
