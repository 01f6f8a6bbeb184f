package source

import (
	"fmt"
)

// Span is a byte range inside one file. Declaration sites of the assembler
// (module, structs, functions, constants) are recorded as spans.
type Span struct {
	File  FileID `msgpack:"file"`
	Start uint32 `msgpack:"start"` // inclusive
	End   uint32 `msgpack:"end"`   // exclusive
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover extends s to include other; spans of different files are left alone.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Contains reports whether other lies inside s.
func (s Span) Contains(other Span) bool {
	return s.File == other.File && other.Start >= s.Start && other.End <= s.End
}
