package stratumcore

import (
	"strings"
	"sync"
)

// duplicateShareSet records every (extranonce1, extranonce2, ntime, nonce,
// version bits) tuple submitted against one job. It only grows; the whole
// set goes away with its job.
type duplicateShareSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func makeDuplicateShareKey(extranonce1, extranonce2, ntime, nonce, versionBits string) string {
	var b strings.Builder
	b.Grow(len(extranonce1) + len(extranonce2) + len(ntime) + len(nonce) + len(versionBits) + 4)
	for i, part := range [...]string{extranonce1, extranonce2, ntime, nonce, versionBits} {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToLower(part))
	}
	return b.String()
}

// add records key and reports whether it was new.
func (s *duplicateShareSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m == nil {
		s.m = make(map[string]struct{}, 64)
	}
	if _, seen := s.m[key]; seen {
		return false
	}
	s.m[key] = struct{}{}
	return true
}

func (s *duplicateShareSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
