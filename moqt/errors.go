package moqt

import (
	"errors"
	"fmt"

	"github.com/okdaichi/moqlite/moqt/watch"
	"github.com/okdaichi/moqlite/quic"
)

var (
	// ErrInvalidScheme is returned when a URL scheme is not supported.
	// Only "https" (WebTransport), "moqt" (QUIC) and "http" (local development) are valid.
	ErrInvalidScheme = errors.New("moqt: invalid scheme")

	// ErrClosedConnection is returned when attempting to use a closed connection.
	ErrClosedConnection = errors.New("moqt: closed connection")

	// ErrServerClosed is returned when the server has been closed.
	ErrServerClosed = errors.New("moqt: server closed")

	// ErrClientClosed is returned when the client has been closed.
	ErrClientClosed = errors.New("moqt: client closed")

	// ErrTrackNotFound aborts a track that nobody can produce.
	ErrTrackNotFound = errors.New("moqt: track not found")

	// ErrBroadcastNotFound is returned when a broadcast path is not published.
	ErrBroadcastNotFound = errors.New("moqt: broadcast not found")

	// ErrDuplicatedBroadcast is returned by Publish for a path that is already published.
	ErrDuplicatedBroadcast = errors.New("moqt: duplicated broadcast path")

	// ErrProtocolViolation is returned when the peer sends something the protocol forbids.
	ErrProtocolViolation = errors.New("moqt: protocol violation")

	// ErrClosed is returned when writing to a closed group, track, broadcast or
	// announcement log.
	ErrClosed = watch.ErrClosed
)

/*
 * Announce Errors
 */
const (
	InternalAnnounceErrorCode AnnounceErrorCode = 0x0

	DuplicatedAnnounceErrorCode    AnnounceErrorCode = 0x1
	InvalidAnnounceStatusErrorCode AnnounceErrorCode = 0x2
	UninterestedErrorCode          AnnounceErrorCode = 0x3
)

var AnnounceErrorCodeTexts = map[AnnounceErrorCode]string{
	InternalAnnounceErrorCode:      "moqt: internal error",
	DuplicatedAnnounceErrorCode:    "moqt: duplicated broadcast path",
	InvalidAnnounceStatusErrorCode: "moqt: invalid announce status",
	UninterestedErrorCode:          "moqt: uninterested",
}

// AnnounceErrorCode represents error codes carried by announce stream resets.
type AnnounceErrorCode quic.StreamErrorCode

func (code AnnounceErrorCode) String() string {
	if text, ok := AnnounceErrorCodeTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("moqt: unknown announce error (%d)", code)
}

// AnnounceError wraps a QUIC stream error with announcement-specific error codes.
type AnnounceError struct{ *quic.StreamError }

func (err AnnounceError) Error() string {
	return err.AnnounceErrorCode().String()
}

func (err AnnounceError) AnnounceErrorCode() AnnounceErrorCode {
	return AnnounceErrorCode(err.ErrorCode)
}

/*
 * Subscribe Errors
 */
const (
	InternalSubscribeErrorCode     SubscribeErrorCode = 0x00
	DuplicateSubscribeIDErrorCode  SubscribeErrorCode = 0x02
	TrackNotFoundErrorCode         SubscribeErrorCode = 0x03
	UnauthorizedSubscribeErrorCode SubscribeErrorCode = 0x04
	SubscribeTimeoutErrorCode      SubscribeErrorCode = 0x05
	SubscribeCanceledErrorCode     SubscribeErrorCode = 0x06
)

var SubscribeErrorCodeTexts = map[SubscribeErrorCode]string{
	InternalSubscribeErrorCode:     "moqt: internal error",
	DuplicateSubscribeIDErrorCode:  "moqt: duplicated id",
	TrackNotFoundErrorCode:         "moqt: track does not exist",
	UnauthorizedSubscribeErrorCode: "moqt: unauthorized",
	SubscribeTimeoutErrorCode:      "moqt: timeout",
	SubscribeCanceledErrorCode:     "moqt: subscribe canceled",
}

// SubscribeErrorCode represents error codes carried by subscribe stream resets.
type SubscribeErrorCode quic.StreamErrorCode

func (code SubscribeErrorCode) String() string {
	if text, ok := SubscribeErrorCodeTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("moqt: unknown subscribe error (%d)", code)
}

// SubscribeError wraps a QUIC stream error with subscription-specific error codes.
type SubscribeError struct{ *quic.StreamError }

func (err SubscribeError) Error() string {
	return err.SubscribeErrorCode().String()
}

func (err SubscribeError) SubscribeErrorCode() SubscribeErrorCode {
	return SubscribeErrorCode(err.ErrorCode)
}

// Is reports a reset carrying TrackNotFoundErrorCode as ErrTrackNotFound.
func (err SubscribeError) Is(target error) bool {
	return target == ErrTrackNotFound && err.SubscribeErrorCode() == TrackNotFoundErrorCode
}

/*
 * Session Error
 */
const (
	NoError SessionErrorCode = 0x0

	InternalSessionErrorCode     SessionErrorCode = 0x1
	UnauthorizedSessionErrorCode SessionErrorCode = 0x2
	ProtocolViolationErrorCode   SessionErrorCode = 0x3
	GoAwayTimeoutErrorCode       SessionErrorCode = 0x10
	UnsupportedVersionErrorCode  SessionErrorCode = 0x12
	SetupFailedErrorCode         SessionErrorCode = 0x13
)

var SessionErrorCodeTexts = map[SessionErrorCode]string{
	NoError:                      "moqt: no error",
	InternalSessionErrorCode:     "moqt: internal error",
	UnauthorizedSessionErrorCode: "moqt: unauthorized",
	ProtocolViolationErrorCode:   "moqt: protocol violation",
	GoAwayTimeoutErrorCode:       "moqt: goaway timeout",
	UnsupportedVersionErrorCode:  "moqt: unsupported version",
	SetupFailedErrorCode:         "moqt: setup failed",
}

// SessionErrorCode represents error codes used when closing a connection.
type SessionErrorCode quic.ApplicationErrorCode

func (code SessionErrorCode) String() string {
	if text, ok := SessionErrorCodeTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("moqt: unknown session error (%d)", code)
}

// SessionError wraps a QUIC application error with session-specific error codes.
type SessionError struct{ *quic.ApplicationError }

func (err SessionError) Error() string {
	var role string
	if err.Remote {
		role = "remote"
	} else {
		role = "local"
	}
	return fmt.Sprintf("%s (%s)", err.SessionErrorCode().String(), role)
}

func (err SessionError) SessionErrorCode() SessionErrorCode {
	return SessionErrorCode(err.ErrorCode)
}

// Is reports a ProtocolViolationErrorCode close as ErrProtocolViolation and
// any close as ErrClosedConnection.
func (err SessionError) Is(target error) bool {
	switch target {
	case ErrClosedConnection:
		return true
	case ErrProtocolViolation:
		return err.SessionErrorCode() == ProtocolViolationErrorCode
	}
	return false
}

/*
 * Group Error
 */
const (
	InternalGroupErrorCode      GroupErrorCode = 0x00
	OutOfRangeErrorCode         GroupErrorCode = 0x02
	ExpiredGroupErrorCode       GroupErrorCode = 0x03
	SubscribeCanceledGroupCode  GroupErrorCode = 0x04
	PublishAbortedErrorCode     GroupErrorCode = 0x05
	ClosedSessionGroupErrorCode GroupErrorCode = 0x06
	InvalidSubscribeIDErrorCode GroupErrorCode = 0x07
)

var GroupErrorCodeTexts = map[GroupErrorCode]string{
	InternalGroupErrorCode:      "moqt: internal error",
	OutOfRangeErrorCode:         "moqt: out of range",
	ExpiredGroupErrorCode:       "moqt: group expires",
	SubscribeCanceledGroupCode:  "moqt: subscribe canceled",
	PublishAbortedErrorCode:     "moqt: publish aborted",
	ClosedSessionGroupErrorCode: "moqt: session closed",
	InvalidSubscribeIDErrorCode: "moqt: invalid subscribe id",
}

// GroupErrorCode represents error codes carried by group stream resets.
type GroupErrorCode quic.StreamErrorCode

func (code GroupErrorCode) String() string {
	if text, ok := GroupErrorCodeTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("moqt: unknown group error (%d)", code)
}

// GroupError wraps a QUIC stream error with group-specific error codes.
type GroupError struct{ *quic.StreamError }

func (err GroupError) Error() string {
	return err.GroupErrorCode().String()
}

func (err GroupError) GroupErrorCode() GroupErrorCode {
	return GroupErrorCode(err.ErrorCode)
}

// subscribeErrorCodeOf picks the code used to reset a subscribe stream whose
// track ended with err.
func subscribeErrorCodeOf(err error) SubscribeErrorCode {
	var subErr *SubscribeError
	if errors.As(err, &subErr) {
		return subErr.SubscribeErrorCode()
	}
	if errors.Is(err, ErrTrackNotFound) {
		return TrackNotFoundErrorCode
	}
	return InternalSubscribeErrorCode
}

// groupErrorCodeOf picks the code used to reset a group stream whose group
// ended with err.
func groupErrorCodeOf(err error) GroupErrorCode {
	var grpErr *GroupError
	if errors.As(err, &grpErr) {
		return grpErr.GroupErrorCode()
	}
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return ClosedSessionGroupErrorCode
	}
	return PublishAbortedErrorCode
}
