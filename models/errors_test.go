package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestTrackErrorClassification(t *testing.T) {
	notFound := NewNotFoundError("carton not found for serial number")
	conflict := NewConflictError("carton is already at this stage", "Received")
	invalid := NewInvalidInputError("target status must be Received or Shipped")
	syncFail := NewAggregateSyncFailure("aggregate sync failed", "deadlock")

	if !IsNotFound(notFound) || IsConflict(notFound) {
		t.Errorf("not-found error misclassified")
	}
	if !IsConflict(conflict) || IsNotFound(conflict) {
		t.Errorf("conflict error misclassified")
	}
	if !IsInvalidInput(invalid) {
		t.Errorf("invalid-input error misclassified")
	}
	if !IsAggregateSyncFailure(syncFail) {
		t.Errorf("aggregate-sync-failure error misclassified")
	}

	if IsConflict(errors.New("plain")) || IsNotFound(nil) {
		t.Errorf("non-track errors must not classify")
	}
}

func TestTrackErrorUnwrapsThroughWrapping(t *testing.T) {
	conflict := NewConflictError("shipment batch is already completed", "b-123")
	wrapped := fmt.Errorf("complete batch: %w", conflict)

	if !IsConflict(wrapped) {
		t.Errorf("wrapped conflict not detected")
	}
	got, ok := AsTrackError(wrapped)
	if !ok {
		t.Fatalf("AsTrackError failed on wrapped error")
	}
	if got.Detail != "b-123" {
		t.Errorf("detail lost through wrapping: %q", got.Detail)
	}
}
