package repository

import (
	"context"

	"alphapulse/internal/models"
)

// TournamentRepository is the read-only record source for both pipelines.
// A source failure here aborts the run; callers never publish on top of a
// partial record set.
type TournamentRepository interface {
	// ListTournaments returns every non-sentinel tournament row in
	// insertion order.
	ListTournaments(ctx context.Context) ([]models.Tournament, error)
}
