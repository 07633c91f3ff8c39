package archive

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is on a *FrameError.
var (
	// Export.
	ErrReferencedThreadMissing    = errors.New("referenced thread missing")
	ErrReferencedChatMissing      = errors.New("referenced chat id missing")
	ErrReferencedRecipientMissing = errors.New("referenced recipient missing")
	ErrEnumeration                = errors.New("enumeration failed")
	ErrFrameWrite                 = errors.New("frame write failed")

	// Restore.
	ErrInvalidProtoData             = errors.New("invalid proto data")
	ErrInvalidCombination           = errors.New("invalid directional/payload combination")
	ErrChatIDNotFound               = errors.New("chat id not found")
	ErrReferencedChatThreadNotFound = errors.New("referenced chat thread not found")
	ErrRecipientIDNotFound          = errors.New("recipient id not found")

	// Both directions.
	ErrDeveloper = errors.New("developer error")
	ErrDatabase  = errors.New("database error")
)

// FrameError ties an error kind to the item it happened on. ID is the
// interaction unique id on export and a frame label on restore.
type FrameError struct {
	ID  string
	Err error
}

func (e *FrameError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return e.ID + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error { return e.Err }

func frameErr(id string, kind error, format string, args ...any) *FrameError {
	if format == "" {
		return &FrameError{ID: id, Err: kind}
	}
	return &FrameError{ID: id, Err: fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)}
}

// IsReferential reports whether err is a referential-integrity error.
func IsReferential(err error) bool {
	return errors.Is(err, ErrReferencedThreadMissing) ||
		errors.Is(err, ErrReferencedChatMissing) ||
		errors.Is(err, ErrReferencedRecipientMissing) ||
		errors.Is(err, ErrChatIDNotFound) ||
		errors.Is(err, ErrReferencedChatThreadNotFound) ||
		errors.Is(err, ErrRecipientIDNotFound)
}
