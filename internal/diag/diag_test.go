package diag

import "testing"

func TestBagLimitAndMerge(t *testing.T) {
	b := NewBag(2)
	for i := 0; i < 3; i++ {
		b.Add(New(SevWarning, SVMStackExhausted, Subject{Shader: "s"}, "x"))
	}
	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2", b.Len())
	}
	other := NewBag(4)
	other.Add(New(SevError, OSLSourceUnreadable, Subject{Path: "a.oso"}, "missing"))
	b.Merge(other)
	if b.Len() != 2 || b.HasErrors() {
		t.Fatalf("merge must honour the limit")
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	subj := Subject{Shader: "glass", Context: "volume"}
	r.Report(SVMStackExhausted, SevError, subj, "out of stack", nil)
	r.Report(SVMStackExhausted, SevError, subj, "out of stack", nil)
	r.Report(SVMStackExhausted, SevError, Subject{Shader: "glass", Context: "surface"}, "out of stack", nil)
	if bag.Len() != 2 {
		t.Fatalf("len = %d, want 2", bag.Len())
	}
}

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		New(SevWarning, OSLMalformedParameter, Subject{Path: "b.oso", Node: "tex"}, "struct parameter\nskipped").
			WithNote(Subject{Node: "tex"}, "param \"s\""),
		New(SevError, SVMStackExhausted, Subject{Shader: "glass", Context: "volume"}, "out of stack"),
	}
	got := FormatShort(diags, true)
	want := "ERROR SVM1001 glass/volume: out of stack\n" +
		"WARNING OSL2003 b.oso/tex: struct parameter\n" +
		"  note tex: param \"s\"\n"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}
