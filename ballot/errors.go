package ballot

import "errors"

var (
	// ErrInvalidVote is returned when a vote is missing a field or has a
	// field of the wrong size.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrUnknownCandidate is returned when a vote is for a candidate that the
	// ballot does not declare.
	ErrUnknownCandidate = errors.New("unknown candidate")
	// ErrLeafMismatch is returned when a vote does not match the published
	// leaf for its key.
	ErrLeafMismatch = errors.New("vote does not match leaf")
	// ErrInvalidSignature is returned when a vote signature does not verify.
	ErrInvalidSignature = errors.New("invalid vote signature")

	ErrAlreadyVoted    = errors.New("already voted")
	ErrVotingFinalized = errors.New("voting finalized")
	ErrNotFinalized    = errors.New("ballot must be finalized before it can be tallied")

	// ErrDoubleVote is returned when the stored ballot contains two votes
	// for the same leaf, which Push never writes.
	ErrDoubleVote = errors.New("double vote in stored ballot")
)

// IsStateError returns true if err is caused by the state of the ballot
// rather than by the vote or by storage. Callers can usually recover from
// these.
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyVoted) ||
		errors.Is(err, ErrVotingFinalized) ||
		errors.Is(err, ErrNotFinalized)
}
