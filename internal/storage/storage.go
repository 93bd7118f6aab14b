package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/nightline-game/nightline/pkg/scenario"
	"github.com/nightline-game/nightline/pkg/state"
)

// Storage provides session persistence plus read access to night content.
// Sessions and cross-night progress live in Redis; nights are static files
// under the data directory.
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSession(ctx context.Context, id uuid.UUID, gs *state.SessionState) error
	// LoadSession returns (nil, nil) when the session does not exist.
	LoadSession(ctx context.Context, id uuid.UUID) (*state.SessionState, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	SaveProgress(ctx context.Context, profile string, p *state.Progress) error
	// LoadProgress returns a zero-value Progress when the profile is new.
	LoadProgress(ctx context.Context, profile string) (*state.Progress, error)

	// ListNights maps night names to their filenames.
	ListNights(ctx context.Context) (map[string]string, error)
	GetNight(ctx context.Context, filename string) (*scenario.Night, error)
}
