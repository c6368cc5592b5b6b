package errors

import "errors"

var (
	// ErrNotFound is the generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrNotFoundOrForbidden covers ownership-scoped lookups where the row
	// is either absent or belongs to another user; callers cannot tell which.
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")
	// ErrPlanLimitExceeded is returned when a user is at their plan's
	// record ceiling. Actionable: upgrade plan.
	ErrPlanLimitExceeded = errors.New("plan limit reached, upgrade plan")
	// ErrKeyGenerationExhausted is returned when short key generation keeps
	// colliding past the re-roll budget.
	ErrKeyGenerationExhausted = errors.New("short key generation exhausted")
	// ErrRetriesExhausted wraps the last transient failure once the retry
	// budget is used up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrInvalidArgument is the generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsTerminal reports whether err is one of the package sentinels. Sentinels
// describe settled business outcomes, so retrying them is never useful.
func IsTerminal(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrNotFoundOrForbidden,
		ErrPlanLimitExceeded,
		ErrKeyGenerationExhausted,
		ErrRetriesExhausted,
		ErrInvalidArgument,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsNotFoundOrForbidden(err error) bool { return errors.Is(err, ErrNotFoundOrForbidden) }
func IsPlanLimitExceeded(err error) bool   { return errors.Is(err, ErrPlanLimitExceeded) }
func IsRetriesExhausted(err error) bool    { return errors.Is(err, ErrRetriesExhausted) }
