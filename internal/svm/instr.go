package svm

import (
	"fmt"

	"fortio.org/safecast"

	"shadekit/internal/graph"
)

// Instr is one fixed-width instruction record. Word 0 holds the opcode for
// instruction records; data records following an instruction are raw.
type Instr [4]int32

func (in Instr) Op() Opcode { return Opcode(in[0]) }

func makeInstr(op Opcode, x, y, z int32) Instr { return Instr{int32(op), x, y, z} }

// EncodeUChar4 packs four stack offsets or small enums into one word.
func EncodeUChar4(x, y, z, w int) int32 {
	return int32(uint32(x&0xff) | uint32(y&0xff)<<8 | uint32(z&0xff)<<16 | uint32(w&0xff)<<24)
}

// DecodeUChar4 inverts EncodeUChar4.
func DecodeUChar4(v int32) (x, y, z, w int) {
	u := uint32(v)
	return int(u & 0xff), int(u >> 8 & 0xff), int(u >> 16 & 0xff), int(u >> 24 & 0xff)
}

func floatWord(f float32) int32 { return graph.FloatBits(f) }

func vecRecord(v graph.Value) Instr {
	vec := v.Vec()
	return Instr{floatWord(vec.X), floatWord(vec.Y), floatWord(vec.Z), 0}
}

// word converts a Go int into an instruction word.
func word(v int) int32 {
	w, err := safecast.Conv[int32](v)
	if err != nil {
		panic(fmt.Errorf("svm: instruction operand overflow: %w", err))
	}
	return w
}

func boolWord(b bool) int {
	if b {
		return 1
	}
	return 0
}
