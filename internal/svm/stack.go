package svm

import "shadekit/internal/graph"

const (
	// StackSize is the number of float slots the interpreter provides.
	StackSize = 255
	// StackInvalid marks an unassigned or inline-encoded operand.
	StackInvalid = 255
	// BumpStateSize is the slot count saved by OpEnterBumpEval.
	BumpStateSize = 9
)

// Stack tracks per-slot reference counts for one compilation.
type Stack struct {
	users []int
	peak  int
}

func NewStack(size int) *Stack {
	if size <= 0 || size > StackSize {
		size = StackSize
	}
	return &Stack{users: make([]int, size)}
}

// Find reserves width contiguous free slots using first fit.
func (s *Stack) Find(width int) (int, bool) {
	free := 0
	for i := range s.users {
		if s.users[i] != 0 {
			free = 0
			continue
		}
		free++
		if free == width {
			offset := i + 1 - width
			for j := offset; j <= i; j++ {
				s.users[j] = 1
			}
			s.peak = max(s.peak, i+1)
			return offset, true
		}
	}
	return 0, false
}

// Retain adds a user to an already reserved range.
func (s *Stack) Retain(offset, width int) {
	for i := offset; i < offset+width && i < len(s.users); i++ {
		s.users[i]++
	}
}

// Release drops a user from each slot of the range.
func (s *Stack) Release(offset, width int) {
	for i := offset; i < offset+width && i < len(s.users); i++ {
		if s.users[i] > 0 {
			s.users[i]--
		}
	}
}

// InUse counts slots with at least one user.
func (s *Stack) InUse() int {
	n := 0
	for _, u := range s.users {
		if u > 0 {
			n++
		}
	}
	return n
}

func (s *Stack) Peak() int { return s.peak }

func (s *Stack) Size() int { return len(s.users) }

// Clear frees every slot but keeps the peak.
func (s *Stack) Clear() { clear(s.users) }

// widthOf is the slot width of a socket; zero-width types never allocate.
func widthOf(t graph.SocketType) int { return graph.StackWidth(t) }
