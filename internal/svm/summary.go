package svm

import (
	"fmt"
	"strings"

	"shadekit/internal/observ"
)

// Summary collects statistics of one compilation for tooling.
type Summary struct {
	NumInstrs int
	PeakStack int
	Timer     *observ.Timer
}

// FullReport renders the summary as a multi-line block.
func (s *Summary) FullReport() string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Number of SVM instructions: %d\n", s.NumInstrs)
	fmt.Fprintf(&sb, "Peak stack usage:           %d\n", s.PeakStack)
	if s.Timer != nil {
		sb.WriteString(s.Timer.Summary())
	}
	return sb.String()
}
