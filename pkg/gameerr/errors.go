package gameerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable classification of a game error. Every kind
// except KindInternal is a recoverable, user-facing condition.
type Kind string

const (
	KindOutOfOrderSubmission  Kind = "out_of_order_submission"
	KindAlreadyCompleted      Kind = "already_completed"
	KindGameNotStarted        Kind = "game_not_started"
	KindGameAlreadyFinished   Kind = "game_already_finished"
	KindGameEnded             Kind = "game_ended"
	KindNoTeam                Kind = "no_team"
	KindNoMoreHints           Kind = "no_more_hints"
	KindUnknownMatch          Kind = "unknown_match"
	KindTournamentComplete    Kind = "tournament_complete"
	KindInvalidChecklistState Kind = "invalid_checklist_state"
	KindLocationNotVerified   Kind = "location_not_verified"
	KindChallengeLocked       Kind = "challenge_locked"
	KindInvalidFormat         Kind = "invalid_submission_format"
	KindPhotoGateRequired     Kind = "photo_verification_required"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindValidation            Kind = "validation"
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindInternal              Kind = "internal"
)

// Error is a structured game error carrying enough context for the submitter
// to self-correct (e.g. the team's actual current challenge id in Details).
type Error struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Internal   error          `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped internal error.
func (e *Error) Unwrap() error { return e.Internal }

// Is matches two game errors by kind, so sentinel comparison with errors.Is
// works across instances carrying different details.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the kind of a game error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status returns the HTTP status for an error, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) && e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// WithDetail attaches a detail field and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newf(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), StatusCode: status}
}

// OutOfOrderSubmission reports a submission whose id does not match the
// team's current pointer. The actual current id is attached as a detail.
func OutOfOrderSubmission(submitted, current int) *Error {
	return newf(KindOutOfOrderSubmission, http.StatusConflict,
		"challenge %d is not your current challenge", submitted).
		WithDetail("current_challenge_id", current)
}

func AlreadyCompleted(challengeID int) *Error {
	return newf(KindAlreadyCompleted, http.StatusConflict,
		"challenge %d has already been completed", challengeID)
}

func GameNotStarted() *Error {
	return newf(KindGameNotStarted, http.StatusConflict, "the game has not started yet")
}

func GameAlreadyFinished() *Error {
	return newf(KindGameAlreadyFinished, http.StatusConflict,
		"your team has already finished the race")
}

func GameEnded() *Error {
	return newf(KindGameEnded, http.StatusConflict, "the game has ended")
}

func NoTeam() *Error {
	return newf(KindNoTeam, http.StatusNotFound, "you are not on any team")
}

func NoMoreHints(challengeID int) *Error {
	return newf(KindNoMoreHints, http.StatusConflict,
		"no more hints are available for challenge %d", challengeID)
}

func UnknownMatch(teamID string) *Error {
	return newf(KindUnknownMatch, http.StatusConflict,
		"team %q is not in an undecided match of the current round", teamID)
}

func TournamentComplete(challengeID int) *Error {
	return newf(KindTournamentComplete, http.StatusConflict,
		"tournament for challenge %d is already complete", challengeID)
}

func InvalidChecklistState(challengeID int) *Error {
	return newf(KindInvalidChecklistState, http.StatusConflict,
		"checklist state for challenge %d is inconsistent", challengeID)
}

func LocationNotVerified(challengeID int) *Error {
	return newf(KindLocationNotVerified, http.StatusConflict,
		"verify your location before challenge %d is revealed", challengeID)
}

// ChallengeLocked reports a submission while the penalty timer is running.
func ChallengeLocked(challengeID int, remainingSeconds int) *Error {
	return newf(KindChallengeLocked, http.StatusConflict,
		"challenge %d is locked by a penalty timer", challengeID).
		WithDetail("remaining_seconds", remainingSeconds)
}

func InvalidFormat(message string) *Error {
	return newf(KindInvalidFormat, http.StatusBadRequest, "%s", message)
}

func PhotoGateRequired(challengeID int) *Error {
	return newf(KindPhotoGateRequired, http.StatusConflict,
		"send a team photo at the challenge location before challenge %d is revealed", challengeID)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, http.StatusNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, http.StatusConflict, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, http.StatusBadRequest, format, args...)
}

func Unauthorized(message string) *Error {
	return newf(KindUnauthorized, http.StatusUnauthorized, "%s", message)
}

func Forbidden(message string) *Error {
	return newf(KindForbidden, http.StatusForbidden, "%s", message)
}

// Internal wraps a programming-error class failure. Mutating operations
// abort without persisting partial state when they surface one of these.
func Internal(message string, internal error) *Error {
	return &Error{
		Kind:       KindInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}
