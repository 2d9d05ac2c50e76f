package diag

import "strings"

// Subject locates a diagnostic. Empty fields are omitted when rendered.
type Subject struct {
	Shader  string
	Context string
	Node    string
	// Path of an external program or scene file.
	Path string
}

func (s Subject) String() string {
	parts := make([]string, 0, 4)
	if s.Path != "" {
		parts = append(parts, s.Path)
	}
	if s.Shader != "" {
		parts = append(parts, s.Shader)
	}
	if s.Context != "" {
		parts = append(parts, s.Context)
	}
	if s.Node != "" {
		parts = append(parts, s.Node)
	}
	return strings.Join(parts, "/")
}

func (s Subject) less(o Subject) bool {
	if s.Path != o.Path {
		return s.Path < o.Path
	}
	if s.Shader != o.Shader {
		return s.Shader < o.Shader
	}
	if s.Context != o.Context {
		return s.Context < o.Context
	}
	return s.Node < o.Node
}

type Note struct {
	Subject Subject
	Msg     string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Subject  Subject
	Notes    []Note
}

func New(sev Severity, code Code, subject Subject, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Subject: subject, Message: msg}
}

func (d Diagnostic) WithNote(s Subject, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Subject: s, Msg: msg})
	return d
}
