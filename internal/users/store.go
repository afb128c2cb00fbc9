package users

import (
	"context"

	"github.com/google/uuid"
)

// Store is the narrow persistence contract for users. Implementations map
// missing rows to ErrUserNotFound and key collisions to ErrUserExists.
type Store interface {
	Find(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, cmd UpdateCommand) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
