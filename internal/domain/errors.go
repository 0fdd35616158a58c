package domain

import (
	"errors"
	"net/http"
)

var (
	// ErrNoSession is returned when an operation needs a credential and none is held.
	ErrNoSession = errors.New("no active session")
	// ErrUnauthorized marks a server response rejecting the credential.
	ErrUnauthorized = errors.New("credential rejected by server")
	// ErrSendInFlight is returned when a send is attempted while another is outstanding.
	ErrSendInFlight = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidConfig wraps widget settings validation failures.
	ErrInvalidConfig = errors.New("invalid widget config")
	// ErrInvalidUpload wraps upload validation failures.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrInvalidDomain wraps embedding domain validation failures.
	ErrInvalidDomain = errors.New("invalid domain")
)

// AuthError is a failed login or signup. Message is the server's text when
// one was available.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError is a transport or authorization failure with no usable server
// message.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Op + ": fetch failed"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ApplicationError is a well-formed response carrying an error payload in
// place of the expected success field.
type ApplicationError struct {
	Status  int
	Message string
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// Is lets a 401 application error match ErrUnauthorized.
func (e *ApplicationError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// NoticeError pairs a failure with the text shown to the user for it.
type NoticeError struct {
	Notice string
	Err    error
}

func (e *NoticeError) Error() string {
	if e.Err == nil {
		return e.Notice
	}
	return e.Notice + ": " + e.Err.Error()
}

func (e *NoticeError) Unwrap() error {
	return e.Err
}

// Notice returns the user-facing text for err.
func Notice(err error) string {
	var (
		notice *NoticeError
		auth   *AuthError
		app    *ApplicationError
	)
	switch {
	case errors.As(err, &notice):
		return notice.Notice
	case errors.As(err, &auth):
		return auth.Message
	case errors.As(err, &app):
		return app.Message
	}
	return "Something went wrong"
}
