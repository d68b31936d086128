package session

import (
	"errors"
	"fmt"
)

// ErrorKind separates failures the caller must act on from ones the session
// absorbs internally.
type ErrorKind string

const (
	// KindFatal errors tear the session down; the caller must restart it.
	KindFatal ErrorKind = "fatal"
	// KindRecoverable errors are handled by queue-and-retry or drop-and-log.
	KindRecoverable ErrorKind = "recoverable"
	// KindProtocol errors are server-reported; surfaced for display without
	// closing the session.
	KindProtocol ErrorKind = "protocol"
)

var (
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrHandshakeTimeout means no session_started arrived in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")
	// ErrReconnectExhausted means the attempt budget was spent without
	// re-establishing the session.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ConnectError wraps a failure to establish the initial session. It is fatal:
// first-attempt failures are surfaced synchronously, never retried, because
// the caller must decide whether credentials or the device are at fault.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Kind() ErrorKind { return KindFatal }
