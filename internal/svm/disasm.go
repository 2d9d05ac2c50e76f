package svm

import (
	"fmt"
	"io"

	"shadekit/internal/graph"
)

// Disassemble writes a listing of p, one instruction per line, with data
// records indented under the instruction they belong to.
func Disassemble(w io.Writer, p *Program) error {
	entries := make(map[int][]string)
	for c, at := range p.Entry {
		if at != NoEntry {
			entries[at] = append(entries[at], graph.Context(c).String())
		}
	}
	pending := 0
	for i, in := range p.Instrs {
		for _, name := range entries[i] {
			if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
				return err
			}
		}
		if pending > 0 {
			pending--
			if _, err := fmt.Fprintf(w, "%5d     .data %d %d %d %d\n", i, in[0], in[1], in[2], in[3]); err != nil {
				return err
			}
			continue
		}
		op := in.Op()
		if _, err := fmt.Fprintf(w, "%5d  %-20s %s\n", i, op, operands(in)); err != nil {
			return err
		}
		pending = op.trailing()
		if pending < 0 {
			pending = int(in[2])
		}
	}
	return nil
}

func operands(in Instr) string {
	switch in.Op() {
	case OpEnd, OpLeaveBumpEval, OpEnterBumpEval, OpValueV, OpClosureEmission, OpClosureTransparent,
		OpSetDisplacement, OpSetNormal, OpClosureWeight:
		return fmt.Sprintf("%d", in[1])
	case OpJumpIfZero, OpJumpIfOne:
		return fmt.Sprintf("+%d if [%d]", in[1], in[2])
	case OpValueF:
		return fmt.Sprintf("%g -> [%d]", bitsFloat(in[1]), in[2])
	case OpClosureSetWeight:
		return fmt.Sprintf("(%g %g %g)", bitsFloat(in[1]), bitsFloat(in[2]), bitsFloat(in[3]))
	case OpMixClosureWeight, OpGamma, OpInvert, OpDisplacement:
		x, y, z, w := DecodeUChar4(in[1])
		return fmt.Sprintf("[%d %d %d %d] %d %d", x, y, z, w, in[2], in[3])
	case OpMath, OpVectorMath, OpMixRGB:
		x, y, z, w := DecodeUChar4(in[2])
		return fmt.Sprintf("type=%d [%d %d %d %d] %d", in[1], x, y, z, w, in[3])
	}
	return fmt.Sprintf("%d %d %d", in[1], in[2], in[3])
}

func bitsFloat(v int32) float64 { return float64(graph.FromFloatBits(v)) }
