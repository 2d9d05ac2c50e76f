package diag

import "sync"

// Reporter receives diagnostics from compilation phases.
type Reporter interface {
	Report(code Code, sev Severity, subject Subject, msg string, notes []Note)
}

// ReportBuilder accumulates notes before emitting once.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

func NewReportBuilder(r Reporter, sev Severity, code Code, subject Subject, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag:     New(sev, code, subject, msg),
	}
}

func ReportError(r Reporter, code Code, subject Subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevError, code, subject, msg)
}

func ReportWarning(r Reporter, code Code, subject Subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, subject, msg)
}

func ReportInfo(r Reporter, code Code, subject Subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevInfo, code, subject, msg)
}

func (b *ReportBuilder) WithNote(s Subject, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Notes = append(b.diag.Notes, Note{Subject: s, Msg: msg})
	return b
}

// Emit sends the diagnostic to the reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		b.reporter.Report(b.diag.Code, b.diag.Severity, b.diag.Subject, b.diag.Message, b.diag.Notes)
	}
	b.emitted = true
}

func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// BagReporter adds into a Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{Severity: sev, Code: code, Message: msg, Subject: subject, Notes: notes})
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Report(Code, Severity, Subject, string, []Note) {}

// LockedReporter serialises access to a reporter shared between goroutines.
type LockedReporter struct {
	mu   sync.Mutex
	next Reporter
}

func NewLockedReporter(next Reporter) *LockedReporter { return &LockedReporter{next: next} }

func (r *LockedReporter) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next != nil {
		r.next.Report(code, sev, subject, msg, notes)
	}
}
