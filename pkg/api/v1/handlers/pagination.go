package handlers

import "github.com/ucext/citizenconnect/internal/db/models"

// getPaginationOptions returns a ListOptions struct for a 1-based page
func getPaginationOptions(page int) *models.ListOptions {
	if page < 1 {
		page = 1
	}

	return &models.ListOptions{
		Limit:  models.DefaultLimit,
		Offset: (page - 1) * models.DefaultLimit,
	}
}
