// Package errmsg classifies failures by recoverability and formats them for users.
package errmsg

import (
	"errors"
	"fmt"
)

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Player operations
	OpConnect      Op = "connect to player"
	OpAuthenticate Op = "authenticate with player"
	OpStatus       Op = "get player status"
	OpCurrentSong  Op = "get current song"
	OpDisconnect   Op = "disconnect from player"

	// History operations
	OpOpenStore      Op = "open history database"
	OpResolveTrack   Op = "resolve track"
	OpListenStart    Op = "record listen"
	OpListenDuration Op = "record listen duration"
	OpRecentListens  Op = "load recent listens"
	OpScrobbleQueue  Op = "queue scrobble"

	// Process operations
	OpLoadConfig Op = "load configuration"
	OpStart      Op = "start daemon"
	OpStop       Op = "stop daemon"
	OpStats      Op = "generate statistics"
	OpLastfmAuth Op = "link Last.fm account"
)

// Kind tells callers how to react to a failure.
type Kind int

const (
	// KindFatal is any failure nobody recognized. The process terminates.
	KindFatal Kind = iota
	// KindConnection is a socket or protocol level failure talking to the player.
	KindConnection
	// KindCommand is a single player request that was rejected or unparsable.
	KindCommand
	// KindPersistence is a failed write or read against the history database.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindCommand:
		return "command"
	case KindPersistence:
		return "persistence"
	default:
		return "fatal"
	}
}

// Reconnects reports whether a failure of this kind leaves the player
// session unusable, so the poll loop should reconnect and carry on.
func (k Kind) Reconnects() bool {
	return k == KindConnection || k == KindCommand
}

// Error carries a Kind and the failed operation. Context optionally names
// the object the operation was working on.
type Error struct {
	Kind    Kind
	Op      Op
	Context string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation. A nil err stays nil.
func New(kind Kind, op Op, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewWith is New with the object the operation was working on.
func NewWith(kind Kind, op Op, context string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Context: context, Err: err}
}

// Connection wraps err as a connection failure.
func Connection(op Op, err error) error { return New(KindConnection, op, err) }

// Command wraps err as a rejected command.
func Command(op Op, err error) error { return New(KindCommand, op, err) }

// Persistence wraps err as a database failure.
func Persistence(op Op, err error) error { return New(KindPersistence, op, err) }

// Message formats e for users.
func (e *Error) Message() string {
	return FormatWith(e.Op, e.Context, e.Err)
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Errors that carry no kind are fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
