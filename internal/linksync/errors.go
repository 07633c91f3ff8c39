package linksync

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnavailable is returned when link-and-sync is disabled or the
	// device has the wrong role for the call.
	ErrUnavailable = errors.New("link-and-sync unavailable")
	// ErrBusy is returned when a session for the same role is in flight.
	ErrBusy = errors.New("link-and-sync session already running")
)

type PrimaryErrorKind int

const (
	TimedOutWaitingForLinkedDevice PrimaryErrorKind = iota + 1
	ErrorWaitingForLinkedDevice
	ErrorGeneratingBackup
	ErrorUploadingBackup
	PrimaryNetworkError
)

func (k PrimaryErrorKind) String() string {
	switch k {
	case TimedOutWaitingForLinkedDevice:
		return "timed_out_waiting_for_linked_device"
	case ErrorWaitingForLinkedDevice:
		return "error_waiting_for_linked_device"
	case ErrorGeneratingBackup:
		return "error_generating_backup"
	case ErrorUploadingBackup:
		return "error_uploading_backup"
	case PrimaryNetworkError:
		return "network_error"
	}
	return fmt.Sprintf("PrimaryErrorKind(%d)", int(k))
}

// PrimaryError is the only error type WaitForLinkingAndUploadBackup returns
// besides ErrUnavailable and ErrBusy. It keeps the cause as text so
// transport types never leak to callers.
type PrimaryError struct {
	Kind   PrimaryErrorKind
	Detail string
}

func (e *PrimaryError) Error() string {
	if e.Detail == "" {
		return "link primary: " + e.Kind.String()
	}
	return "link primary: " + e.Kind.String() + ": " + e.Detail
}

// Is matches another *PrimaryError of the same kind.
func (e *PrimaryError) Is(target error) bool {
	t, ok := target.(*PrimaryError)
	return ok && t.Kind == e.Kind
}

type SecondaryErrorKind int

const (
	TimedOutWaitingForBackup SecondaryErrorKind = iota + 1
	ErrorWaitingForBackup
	ErrorDownloadingBackup
	ErrorRestoringBackup
	SecondaryNetworkError
)

func (k SecondaryErrorKind) String() string {
	switch k {
	case TimedOutWaitingForBackup:
		return "timed_out_waiting_for_backup"
	case ErrorWaitingForBackup:
		return "error_waiting_for_backup"
	case ErrorDownloadingBackup:
		return "error_downloading_backup"
	case ErrorRestoringBackup:
		return "error_restoring_backup"
	case SecondaryNetworkError:
		return "network_error"
	}
	return fmt.Sprintf("SecondaryErrorKind(%d)", int(k))
}

// SecondaryError mirrors PrimaryError for WaitForBackupAndRestore.
type SecondaryError struct {
	Kind   SecondaryErrorKind
	Detail string
}

func (e *SecondaryError) Error() string {
	if e.Detail == "" {
		return "link secondary: " + e.Kind.String()
	}
	return "link secondary: " + e.Kind.String() + ": " + e.Detail
}

func (e *SecondaryError) Is(target error) bool {
	t, ok := target.(*SecondaryError)
	return ok && t.Kind == e.Kind
}

func primaryErr(kind PrimaryErrorKind, format string, args ...any) *PrimaryError {
	return &PrimaryError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func secondaryErr(kind SecondaryErrorKind, format string, args ...any) *SecondaryError {
	return &SecondaryError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// isNetwork reports whether err came from the transport rather than from
// the remote end rejecting the request.
func isNetwork(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrTransport)
}
