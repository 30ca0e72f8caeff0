// Package ntfserr defines the error kinds the core NTFS parser can return,
// per the error-handling design: callers match on Kind with errors.Is, not
// on message text.
package ntfserr

import "fmt"

// Kind classifies a failure. It is comparable, so a sentinel *Error wrapping
// a Kind works with errors.Is.
type Kind int

const (
	_ Kind = iota
	IO
	InvalidBootSector
	CorruptedRecord
	CorruptedAttribute
	CorruptedRunList
	CompressionCorrupted
	IndexCorrupted
	IndexCycle
	TruncatedAttributeChain
	StaleReference
	Unsupported
	Aborted
)

// Error lets a bare Kind be used as errors.Is's target: errors.Is(err,
// ntfserr.CorruptedRecord) type-checks because Kind satisfies error.
func (k Kind) Error() string { return k.String() }

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case InvalidBootSector:
		return "invalid boot sector"
	case CorruptedRecord:
		return "corrupted record"
	case CorruptedAttribute:
		return "corrupted attribute"
	case CorruptedRunList:
		return "corrupted run list"
	case CompressionCorrupted:
		return "compression corrupted"
	case IndexCorrupted:
		return "index corrupted"
	case IndexCycle:
		return "index cycle"
	case TruncatedAttributeChain:
		return "truncated attribute chain"
	case StaleReference:
		return "stale reference"
	case Unsupported:
		return "unsupported"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every core operation returns. Op names
// the failing operation (e.g. "MftEntry.Parse"), and Err, when set, is the
// underlying cause (typically an io.Reader error or a more specific detail).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeKind) work by comparing Kind directly: callers
// do errors.Is(err, ntfserr.CorruptedRecord) and this method makes that
// match any *Error with the same Kind. A target *Error also matches by Kind.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error. Err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted wrapped cause.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
