package utils

import (
	"errors"
	"fmt"
	"path"
	"runtime"
)

// RaisedErr is an error that remembers where it was raised.
// Errors returned by autosig packages are RaisedErr instances.
//
// Each package declares a private flag error type and a set of flag **constants**.
// A RaisedErr carries one of those flags so that callers can classify it with errors.Is,
// while Cause keeps the lower level error for operator diagnostics.
type RaisedErr struct {
	// Flag classifies the error, eg credentials.ErrNotFound.
	Flag error

	// Cause is the error that caused the RaisedErr{}.
	Cause error

	// Msg describes what happened.
	Msg string

	// Filename is "package_dir/file.go" of the code that raised the error.
	Filename string

	// Line is the location in Filename of the code that raised the error.
	Line int
}

// Error implements the error interface.
func (self RaisedErr) Error() string {
	if nil == self.Cause {
		return fmt.Sprintf("%s: %s [%s:%d]", self.flagText(), self.Msg, self.Filename, self.Line)
	}
	return fmt.Sprintf("%s: %s [%s:%d]\n  caused by: %v", self.flagText(), self.Msg, self.Filename, self.Line, self.Cause)
}

func (self RaisedErr) flagText() string {
	if nil == self.Flag {
		return path.Dir(self.Filename)
	}
	return self.Flag.Error()
}

// Unwrap returns a slice that contains the Flag & Cause of the RaisedErr.
func (self RaisedErr) Unwrap() []error {
	rv := make([]error, 0, 2)
	if nil != self.Flag {
		rv = append(rv, self.Flag)
	}
	if nil != self.Cause {
		rv = append(rv, self.Cause)
	}
	return rv
}

// NewError returns a RaisedErr{} that contains file & line of where it was called.
//
// skip allows controlling Caller frame resolution, if you are calling NewError directly set skip to 0,
// if you are calling NewError from an intermediary newError function set skip to 1...
func NewError(skip int, flag error, msg string, args ...any) error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	err := RaisedErr{Flag: flag, Msg: msg}
	addCallerFileLine(skip, &err)
	return err
}

// WrapError returns a RaisedErr{} that contains file & line of where it was called.
// If cause is nil, WrapError returns nil.
//
// skip allows controlling Caller frame resolution, if you are calling WrapError directly set skip to 0,
// if you are calling WrapError from an intermediary wrapError function set skip to 1...
func WrapError(cause error, skip int, flag error, msg string, args ...any) error {
	if nil == cause {
		return nil
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	err := RaisedErr{Flag: flag, Cause: cause, Msg: msg}
	addCallerFileLine(skip, &err)
	return err
}

// Location returns "file:line" of the innermost RaisedErr found in err chain.
// It returns an empty string if err does not contain a RaisedErr.
func Location(err error) string {
	var loc string
	var re RaisedErr
	for errors.As(err, &re) {
		loc = fmt.Sprintf("%s:%d", re.Filename, re.Line)
		if nil == re.Cause {
			break
		}
		err = re.Cause
	}
	return loc
}

func addCallerFileLine(skip int, err *RaisedErr) {
	_, filename, line, ok := runtime.Caller(2 + skip)
	if ok {
		dirname, basename := path.Split(filename)
		err.Filename = path.Join(path.Base(dirname), basename)
		err.Line = line
	}
}

// errorFlag is the flag type of errors raised by the utils package itself.
type errorFlag string

const (
	Error   = errorFlag("utils: error")
	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	}
	return Error
}

func newError(msg string, args ...any) error {
	return NewError(1, Error, msg, args...)
}
