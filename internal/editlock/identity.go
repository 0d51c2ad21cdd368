package editlock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Identity returns the owner id of the editing context named contextKey,
// minting and persisting one on first use. A context that comes back with
// the same key gets the same owner and so keeps its own leases.
func Identity(ctx context.Context, local Storage, contextKey string) (string, error) {
	key := "editor-owner:" + contextKey
	owner, ok, err := local.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read owner id: %w", err)
	}
	if ok && owner != "" {
		return owner, nil
	}
	owner = uuid.NewString()
	if err := local.Set(ctx, key, owner); err != nil {
		return "", fmt.Errorf("persist owner id: %w", err)
	}
	return owner, nil
}
