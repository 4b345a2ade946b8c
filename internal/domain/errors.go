package domain

import "errors"

// Kind classifies engine errors so transports can map them to statuses
// without string matching. Nothing here is fatal; every failure is returned
// to the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindForbidden
	KindConflict
	KindValidation
	KindPlanning
	KindVersionConflict
)

// Error is a typed engine error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets errors.Is match any error of the same kind, so callers can test
// against a sentinel without caring about the exact message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NotFound builds a KindNotFound error.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// InvalidState builds a KindInvalidState error.
func InvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, Message: msg} }

// Forbidden builds a KindForbidden error.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// Conflict builds a KindConflict error.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Validation builds a KindValidation error.
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// Planning builds a KindPlanning error.
func Planning(msg string) *Error { return &Error{Kind: KindPlanning, Message: msg} }

// KindOf extracts the kind of an error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	// ErrDebateNotFound is returned when a debate id matches nothing.
	ErrDebateNotFound = NotFound("debate not found")
	// ErrMeetingNotFound is returned when a debate's meeting is missing.
	ErrMeetingNotFound = NotFound("meeting not found")
	// ErrSessionNotFound is returned when a quiz session id matches nothing.
	ErrSessionNotFound = NotFound("quiz session not found")
	// ErrQuizNotFound indicates the question bank could not be loaded.
	ErrQuizNotFound = NotFound("quiz not found")
	// ErrQuestionNotFound indicates the current index points past the bank.
	ErrQuestionNotFound = NotFound("question not found")

	// ErrNotAJuror rejects jury ballots from emails outside the jury.
	ErrNotAJuror = Forbidden("email is not in the jury for this debate")
	// ErrNotInvited rejects public votes from emails outside the meeting
	// invite list.
	ErrNotInvited = Forbidden("email is not invited to this meeting")
	// ErrIneligibleVoter rejects public votes from judges and team members.
	ErrIneligibleVoter = Forbidden("judges and team members cannot vote as public")
	// ErrPlayerNotInSession rejects submissions from unknown players.
	ErrPlayerNotInSession = Forbidden("player not in session")

	// ErrAlreadyAnswered enforces first-submission-wins per question.
	ErrAlreadyAnswered = Conflict("already answered")

	// ErrNotVotingStep rejects votes aimed at a step without that action.
	ErrNotVotingStep = InvalidState("step does not accept this vote")
	// ErrNoActiveQuestion rejects submissions before the quiz started.
	ErrNoActiveQuestion = InvalidState("no active question")
	// ErrEmptyQuiz rejects starting a session over a bank with no questions.
	ErrEmptyQuiz = InvalidState("quiz has no questions")

	// ErrInvalidStep flags an out-of-range step index.
	ErrInvalidStep = Validation("invalid step index")
	// ErrMissingTeamChoice flags a vote without a team.
	ErrMissingTeamChoice = Validation("missing team choice")
	// ErrUnknownTeam flags a vote for a team id not in the debate.
	ErrUnknownTeam = Validation("unknown team")
	// ErrUnknownAction flags an unrecognized control action.
	ErrUnknownAction = Validation("unknown action")

	// ErrInsufficientParticipants means the signup pool cannot cover judge
	// and team seats.
	ErrInsufficientParticipants = Planning("insufficient participants registered")
	// ErrInsufficientJudges means the judge-eligible pool is too small.
	ErrInsufficientJudges = Planning("insufficient judges registered")
	// ErrTeamUnderfilled means team distribution could not reach team_size
	// everywhere.
	ErrTeamUnderfilled = Planning("team could not be filled to size")

	// ErrVersionConflict is returned by stores when a save loses the
	// compare-and-swap race.
	ErrVersionConflict = &Error{Kind: KindVersionConflict, Message: "document version conflict"}
)
