package output

import (
	"fmt"
	"strings"
)

// Diagnostic is a user-facing error with its source location and the class
// or member it concerns.
type Diagnostic struct {
	Kind      string `json:"kind" yaml:"kind"`
	File      string `json:"file,omitempty" yaml:"file,omitempty"`
	Line      int    `json:"line,omitempty" yaml:"line,omitempty"`
	Class     string `json:"class,omitempty" yaml:"class,omitempty"`
	Member    string `json:"member,omitempty" yaml:"member,omitempty"`
	Message   string `json:"message" yaml:"message"`
	Hint      string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Backtrace string `json:"-" yaml:"-"`
}

func (d Diagnostic) location(s Styles) string {
	var parts []string
	if d.File != "" {
		loc := d.File
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", d.File, d.Line)
		}
		parts = append(parts, loc)
	}
	switch {
	case d.Class != "" && d.Member != "":
		parts = append(parts, s.Class.Render(d.Class)+"."+s.Member.Render(d.Member))
	case d.Class != "":
		parts = append(parts, s.Class.Render(d.Class))
	}
	return strings.Join(parts, " ")
}
