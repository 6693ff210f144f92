package logger

import (
	"fmt"
	"io"
	"log"
)

// Null discards everything.
func Null() *log.Logger {
	return log.New(io.Discard, "", log.LstdFlags)
}

func Default() *log.Logger {
	return log.Default()
}

// For creates a logger writing to w, prefixed with the command name like "[gbdx task run-local] ".
func For(w io.Writer, command string) *log.Logger {
	return log.New(w, fmt.Sprintf("[%s] ", command), log.LstdFlags)
}
