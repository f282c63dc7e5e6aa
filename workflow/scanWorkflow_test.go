package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/supplychain_backend/models"
)

// The lifecycle is forward-only with no skipping: the only legal moves are
// Generated->Received and Received->Shipped.
func TestCanTransition(t *testing.T) {
	statuses := []models.CartonStatus{
		models.CartonStatusGenerated,
		models.CartonStatusReceived,
		models.CartonStatusShipped,
	}

	allowed := map[[2]models.CartonStatus]bool{
		{models.CartonStatusGenerated, models.CartonStatusReceived}: true,
		{models.CartonStatusReceived, models.CartonStatusShipped}:   true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]models.CartonStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}
