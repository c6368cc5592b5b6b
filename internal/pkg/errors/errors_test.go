package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestHelpersMatchWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("creating record: %w", ErrPlanLimitExceeded)
	if !IsPlanLimitExceeded(wrapped) {
		t.Fatal("wrapped plan limit error not recognized")
	}
	if IsNotFound(wrapped) {
		t.Fatal("plan limit error misclassified as not found")
	}

	deep := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrNotFoundOrForbidden))
	if !IsNotFoundOrForbidden(deep) {
		t.Fatal("doubly wrapped sentinel not recognized")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrNotFoundOrForbidden,
		ErrPlanLimitExceeded,
		ErrKeyGenerationExhausted,
		ErrRetriesExhausted,
		ErrInvalidArgument,
	} {
		if !IsTerminal(fmt.Errorf("wrap: %w", sentinel)) {
			t.Errorf("IsTerminal(%v) = false, want true", sentinel)
		}
	}
	if IsTerminal(errors.New("connection reset")) {
		t.Fatal("arbitrary error classified as terminal")
	}
	if IsTerminal(nil) {
		t.Fatal("nil classified as terminal")
	}
}
