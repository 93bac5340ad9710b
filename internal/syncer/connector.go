package syncer

import (
	"context"
	"fmt"

	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

// Connector authenticates against a sync backend and opens its targets.
type Connector interface {
	// Initialize prepares the backend, signing in if needed.
	Initialize(ctx context.Context) error
	IsSignedIn() bool
	// SetupTarget creates a new target with all regions and returns its id.
	SetupTarget(ctx context.Context) (string, error)
	// Open returns the target with the given id.
	Open(ctx context.Context, id string) (tabular.Target, error)
}

// Connect initializes conn and opens the target id, creating a new target
// when id is empty. It returns the id of the opened target.
func Connect(ctx context.Context, conn Connector, id string) (tabular.Target, string, error) {
	if err := conn.Initialize(ctx); err != nil {
		return nil, "", fmt.Errorf("initializing sync backend: %w", err)
	}
	if !conn.IsSignedIn() {
		return nil, "", &NotConnectedError{}
	}
	if id == "" {
		created, err := conn.SetupTarget(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("setting up sync target: %w", err)
		}
		id = created
	}
	t, err := conn.Open(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("opening sync target %s: %w", id, err)
	}
	return t, id, nil
}
