package consensus

import (
	"errors"
)

// Validation errors: the request is malformed. Nothing was mutated and the
// request can be fixed and retried.
var (
	ErrInvalidAddress   = errors.New("consensus: invalid IPv4 address")
	ErrNegativeStake    = errors.New("consensus: stake must be nonnegative")
	ErrStakeTooLarge    = errors.New("consensus: stake exceeds the per-node ceiling")
	ErrBadSignature     = errors.New("consensus: signature is not valid base64")
	ErrBadRandomness    = errors.New("consensus: seed randomness must be base64 of at least 2 bytes")
	ErrTurnOutOfRange   = errors.New("consensus: turn must be in [0, 65535]")
	ErrMissingField     = errors.New("consensus: missing required field")
	ErrSelfAccusation   = errors.New("consensus: a node cannot accuse itself")
	ErrInvalidStateFile = errors.New("consensus: persisted state is inconsistent")
)

// Authorization errors: the caller is not allowed to do this.
var (
	ErrInvalidSignature = errors.New("consensus: signature verification failed")
	ErrNotLeader        = errors.New("consensus: caller is not the leader for this turn")
	ErrNotWinner        = errors.New("consensus: caller is not the tallied winner")
	ErrNoStake          = errors.New("consensus: node has no frozen stake")
	ErrNodeInactive     = errors.New("consensus: node has been expelled")
)

// Protocol state errors: the request is valid but early or late. Poll and retry.
var (
	ErrNoSeed        = errors.New("consensus: no seed published for this turn")
	ErrSeedPublished = errors.New("consensus: seed already published for this turn")
	ErrWrongTurn     = errors.New("consensus: turn does not match the current turn")
	ErrNoQuorum      = errors.New("consensus: quorum not reached")
)

// Not found errors.
var (
	ErrUnknownNode = errors.New("consensus: node not registered")
)

// ErrPersistence wraps store failures. The operation was rolled back.
var ErrPersistence = errors.New("consensus: failed to persist state")

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthorization
	KindProtocolState
	KindNotFound
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuthorization:
		return "AuthorizationError"
	case KindProtocolState:
		return "ProtocolStateError"
	case KindNotFound:
		return "NotFoundError"
	case KindPersistence:
		return "PersistenceError"
	default:
		return "InternalError"
	}
}

var errorKinds = map[error]ErrorKind{
	ErrInvalidAddress:   KindValidation,
	ErrNegativeStake:    KindValidation,
	ErrStakeTooLarge:    KindValidation,
	ErrBadSignature:     KindValidation,
	ErrBadRandomness:    KindValidation,
	ErrTurnOutOfRange:   KindValidation,
	ErrMissingField:     KindValidation,
	ErrSelfAccusation:   KindValidation,
	ErrInvalidStateFile: KindValidation,

	ErrInvalidSignature: KindAuthorization,
	ErrNotLeader:        KindAuthorization,
	ErrNotWinner:        KindAuthorization,
	ErrNoStake:          KindAuthorization,
	ErrNodeInactive:     KindAuthorization,

	ErrNoSeed:        KindProtocolState,
	ErrSeedPublished: KindProtocolState,
	ErrWrongTurn:     KindProtocolState,
	ErrNoQuorum:      KindProtocolState,

	ErrUnknownNode: KindNotFound,

	ErrPersistence: KindPersistence,
}

// KindOf classifies an error returned by the engine.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	// Persistence wraps the underlying cause, so check it first.
	if errors.Is(err, ErrPersistence) {
		return KindPersistence
	}
	for sentinel, kind := range errorKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
