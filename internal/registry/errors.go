package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the registry, checked with errors.Is/As at
// the intake and worker boundaries. Malformed carries the specific failing
// constraint in its message (e.g. "main.c is too big") per spec.
var (
	// ErrInvalidRoot means the registry root is not an existing directory.
	ErrInvalidRoot = errors.New("registry root is not a directory")
	// ErrMalformed means the submission violates the packet layout
	// constraints. The caller should report err.Error() to the client.
	ErrMalformed = errors.New("malformed submission")
	// ErrUnknownPacket means the requested hash has no known packet.
	ErrUnknownPacket = errors.New("no such package")
	// ErrCorrupt means a registry invariant was violated on disk (e.g. a
	// Received packet missing from the queue, or a Completed packet
	// missing its result.json).
	ErrCorrupt = errors.New("registry invariant violated")
)

// MalformedError wraps a specific constraint violation so callers can
// recover the original message via errors.Is(err, ErrMalformed) while still
// rendering err.Error() verbatim to the client.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return e.Reason }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}
