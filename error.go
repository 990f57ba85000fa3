package wsrpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/igoforth/ws-rpc/code"
)

// Error is the concrete type of errors arising from RPC calls.
type Error struct {
	Message string    // the human-readable error message
	Code    code.Code // the machine-readable error code
	Data    any       // optional ancillary error data
	Method  string    // the originating call's method, when known
	Remote  bool      // true if the error arrived from the remote peer
}

// Error renders e to a human-readable string for the error interface.
func (e *Error) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// ErrCode trivially satisfies the code.ErrCoder interface for an *Error.
func (e *Error) ErrCode() code.Code { return e.Code }

// WithData returns a copy of e whose Data field is v. If v == nil, e is
// returned without modification.
func (e *Error) WithData(v any) *Error {
	if v == nil {
		return e
	}
	return &Error{Code: e.Code, Message: e.Message, Data: v, Method: e.Method, Remote: e.Remote}
}

// Errorf returns an error value of concrete type *Error having the specified
// code and formatted message string.
func Errorf(c code.Code, msg string, args ...any) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(msg, args...)}
}

// errClosed reports that a call or emit was attempted on a closed peer or a
// transport that is not open, or that close rejected the call while pending.
func errClosed() *Error {
	return &Error{Code: code.ConnectionClosed, Message: "connection closed"}
}

// errMethodNotFound is the failure for a method absent from a schema. The
// message shape travels on the wire, so both sides produce it identically.
func errMethodNotFound(method string) *Error {
	return &Error{Code: code.MethodNotFound, Message: fmt.Sprintf("Method '%s' not found", method), Method: method}
}

// errTimeout names the method and the elapsed deadline.
func errTimeout(method string, d time.Duration) *Error {
	return &Error{Code: code.Timeout, Message: fmt.Sprintf("Method '%s' timed out after %dms", method, d.Milliseconds()), Method: method}
}

// errValidation carries the validator's findings as error data.
func errValidation(method string, err error) *Error {
	return &Error{Code: code.ValidationError, Message: err.Error(), Data: issueData(err), Method: method}
}

// remoteError rebuilds the failure a peer reported for one of our requests.
func remoteError(method string, m *ErrorMessage) *Error {
	return &Error{Code: code.Code(m.Code), Message: m.Message, Data: m.Data, Method: method, Remote: true}
}

// IsTimeout reports whether err is a call deadline failure.
func IsTimeout(err error) bool { return code.FromError(err) == code.Timeout }

// IsConnectionClosed reports whether err arose from a closed peer or
// transport.
func IsConnectionClosed(err error) bool { return code.FromError(err) == code.ConnectionClosed }

// IsMethodNotFound reports whether err names an undeclared or unimplemented
// method.
func IsMethodNotFound(err error) bool { return code.FromError(err) == code.MethodNotFound }

// IsValidationError reports whether err carries schema validation findings.
func IsValidationError(err error) bool { return code.FromError(err) == code.ValidationError }

// IsRemote reports whether err was produced by the remote peer rather than
// locally.
func IsRemote(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Remote
}
