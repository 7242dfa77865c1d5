package autosig

import (
	"errors"
	"fmt"
	"strconv"
)

// Code is the numeric status carried by every API response.
// 0 reports success, negative values report failures.
type Code int

const (
	CodeOK               Code = 0
	CodeInternalFault    Code = -1
	CodeMissingParameter Code = -2
	CodeInvalidParameter Code = -3
	CodeUserNotFound     Code = -4
	CodeUserExisting     Code = -5
	CodeInvalidPassword  Code = -6
)

// String implements fmt.Stringer.
func (self Code) String() string {
	switch self {
	case CodeOK:
		return "OK"
	case CodeInternalFault:
		return "InternalFault"
	case CodeMissingParameter:
		return "MissingParameter"
	case CodeInvalidParameter:
		return "InvalidParameter"
	case CodeUserNotFound:
		return "UserNotFound"
	case CodeUserExisting:
		return "UserExisting"
	case CodeInvalidPassword:
		return "InvalidPassword"
	}
	return "Code(" + strconv.Itoa(int(self)) + ")"
}

// StatusError is the error returned by the autosig services.
// Code classifies the failure, Cause holds the diagnostic that is only meant for operator logs.
type StatusError struct {
	Code  Code
	Msg   string
	Cause error
}

// Error implements the error interface.
func (self *StatusError) Error() string {
	if nil == self.Cause {
		return fmt.Sprintf("autosig %s: %s", self.Code, self.Msg)
	}
	return fmt.Sprintf("autosig %s: %s\n  caused by: %v", self.Code, self.Msg, self.Cause)
}

func (self *StatusError) Unwrap() error {
	return self.Cause
}

// Is allows errors.Is(err, &StatusError{Code: c}) to match any StatusError with Code c.
func (self *StatusError) Is(target error) bool {
	other, ok := target.(*StatusError)
	return ok && other.Code == self.Code && "" == other.Msg && nil == other.Cause
}

// CodeOf returns the Code that reports err.
// It returns CodeOK for a nil err and CodeInternalFault for errors that are not a StatusError.
func CodeOf(err error) Code {
	if nil == err {
		return CodeOK
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return CodeInternalFault
}

func statusError(code Code, cause error, msg string, args ...any) *StatusError {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &StatusError{Code: code, Msg: msg, Cause: cause}
}
