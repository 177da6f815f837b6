package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorUnwrapsKind(t *testing.T) {
	err := NewAppError("trainer.Train", "illegal argument depth for DecisionTreeClassifier", ErrIllegalArgument)
	wrapped := fmt.Errorf("train: %w", err)

	if !errors.Is(wrapped, ErrIllegalArgument) {
		t.Fatalf("expected wrapped error to match ErrIllegalArgument")
	}
	if Kind(wrapped) != ErrIllegalArgument {
		t.Fatalf("unexpected kind: %v", Kind(wrapped))
	}
	if got := err.Error(); got != "trainer.Train: illegal argument depth for DecisionTreeClassifier: illegal argument" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestKindUnclassified(t *testing.T) {
	if Kind(errors.New("boom")) != nil {
		t.Fatalf("expected nil kind for plain error")
	}
	if Kind(nil) != nil {
		t.Fatalf("expected nil kind for nil error")
	}
}
