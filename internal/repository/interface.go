package repository

import (
	"context"
	"errors"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// InstantiationStore is an interface for storing and retrieving instantiation records.
type InstantiationStore interface {
	// Save saves an instantiation record.
	Save(ctx context.Context, inst *models.Instantiation) error
	// Get retrieves an instantiation by its ID.
	Get(ctx context.Context, id string) (*models.Instantiation, error)
	// ListByUser returns the user's instantiations, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Instantiation, error)
	// Ping checks the connection.
	Ping(ctx context.Context) error
}
