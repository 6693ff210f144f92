// Package errors annotates errors with the place they pass through.
//
//	wrapped := xerrors.Wrap(err)
//
// `wrapped` knows the file, line and function where it is created.
// Reading a message, replace
//
//	s/<-/\n/
//
// to get the "stack" of marked places.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Traced is an error annotated with its call site.
type Traced struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *Traced) File() string {
	return e.file
}

func (e *Traced) Line() int {
	return e.line
}

func (e *Traced) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *Traced) Unwrap() error {
	return e.err
}

func New(text string) error {
	return trace("", errors.New(text), 1)
}

// Wrap annotates err with the caller. nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return trace("", err, 1)
}

// WrapWithNote is Wrap with a short note printed next to the location.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return trace(note, err, 1)
}

func trace(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &Traced{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
