package record

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

const maxFrames = 32

// Frame is one entry of a captured call stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Exception is the captured error attached to a record: the error's Go type,
// its message and the stack at the point it was logged.
type Exception struct {
	Type    string
	Message string
	Frames  []Frame
}

// Capture builds an Exception from err and the caller's stack. skip counts
// frames above the caller of Capture. A nil err yields nil.
func Capture(err error, skip int) *Exception {
	if err == nil {
		return nil
	}
	return &Exception{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Frames:  callers(skip + 2),
	}
}

// Traceback renders the exception oldest frame first, ending with a
// "Type: message" line.
func (e *Exception) Traceback() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	for i := len(e.Frames) - 1; i >= 0; i-- {
		fr := e.Frames[i]
		b.WriteString("  File \"")
		b.WriteString(fr.File)
		b.WriteString("\", line ")
		b.WriteString(strconv.Itoa(fr.Line))
		b.WriteString(", in ")
		b.WriteString(fr.Function)
		b.WriteString("\n")
	}
	b.WriteString(e.Type)
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func callers(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		fr, more := frames.Next()
		if fr.File != "" {
			out = append(out, Frame{Function: fr.Function, File: fr.File, Line: fr.Line})
		}
		if !more {
			break
		}
	}
	return out
}
