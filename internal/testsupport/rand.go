package testsupport

import (
	"fmt"
	"sync"
)

// ScriptedRand replays fixed draws and returns 0 once the script runs out.
// A draw outside [0, n) panics so a mis-scripted test fails loudly.
type ScriptedRand struct {
	mu     sync.Mutex
	values []int
	pos    int
	calls  int
}

// NewScriptedRand returns a source that yields values in order.
func NewScriptedRand(values ...int) *ScriptedRand {
	return &ScriptedRand{values: append([]int(nil), values...)}
}

// IntN implements effects.Rand.
func (s *ScriptedRand) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.pos >= len(s.values) {
		return 0
	}
	v := s.values[s.pos]
	s.pos++
	if v < 0 || v >= n {
		panic(fmt.Sprintf("scripted draw %d outside [0,%d) at position %d", v, n, s.pos-1))
	}
	return v
}

// Calls reports how many draws were made.
func (s *ScriptedRand) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
