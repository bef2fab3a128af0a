package bluez

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// D-Bus error names the controllers make decisions on.
const (
	ErrNameInProgress       = "org.bluez.Error.InProgress"
	ErrNameFailed           = "org.bluez.Error.Failed"
	ErrNameAlreadyConnected = "org.bluez.Error.AlreadyConnected"
	ErrNameNotReady         = "org.bluez.Error.NotReady"
	ErrNameTimeout          = "org.freedesktop.DBus.Error.Timeout"
	ErrNameNoReply          = "org.freedesktop.DBus.Error.NoReply"
	ErrNameUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
)

// Directory errors are fatal: they mean the daemon is gone or speaks a
// different protocol.
var (
	ErrDirectory      = errors.New("managed objects query failed")
	ErrMalformedReply = errors.New("malformed managed objects reply")
	ErrPropertyType   = errors.New("unexpected property type")
)

// ErrorKind classifies a failed call for retry decisions.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindOther
	KindInProgress
	KindTimeout
	KindFailed
	KindAlreadyConnected
	KindUnknownObject
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInProgress:
		return "in_progress"
	case KindTimeout:
		return "timeout"
	case KindFailed:
		return "failed"
	case KindAlreadyConnected:
		return "already_connected"
	case KindUnknownObject:
		return "unknown_object"
	default:
		return "other"
	}
}

// CallError wraps a failed method call with the object it targeted.
type CallError struct {
	Path      ObjectPath
	Interface Interface
	Method    string
	Err       error
}

func (e *CallError) Error() string {
	if name := ErrorName(e.Err); name != "" {
		return fmt.Sprintf("%s on %s failed: %s (%v)", e.Interface.Member(e.Method), e.Path, name, e.Err)
	}
	return fmt.Sprintf("%s on %s failed: %v", e.Interface.Member(e.Method), e.Path, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ErrorName extracts the D-Bus error name from err, or "" if err is not a
// D-Bus error reply.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name
	}
	return ""
}

// Classify maps err to the ErrorKind the connection backoff understands.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	switch ErrorName(err) {
	case ErrNameInProgress:
		return KindInProgress
	case ErrNameTimeout, ErrNameNoReply:
		return KindTimeout
	case ErrNameFailed:
		return KindFailed
	case ErrNameAlreadyConnected:
		return KindAlreadyConnected
	case ErrNameUnknownObject:
		return KindUnknownObject
	default:
		return KindOther
	}
}
