package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets through num of every den events. A zero ratio lets everything through.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the window.
func (s *sampler) Set(num, den int) {
	var packed uint64
	if num > 0 && den > 0 {
		num = min(num, den)
		packed = uint64(uint32(num))<<32 | uint64(uint32(den))
	}
	s.ratio.Store(packed)
	s.seen.Store(0)
}

// Allow reports whether the next event is sampled in.
func (s *sampler) Allow() bool {
	packed := s.ratio.Load()
	if packed == 0 {
		return true
	}
	num, den := packed>>32, packed&0xffffffff
	return (s.seen.Add(1)-1)%den < num
}

// parseRatio accepts "n/d", "d" (one in d) and "p%".
// Anything unparsable or non-positive yields 0, 0.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if p, ok := strings.CutSuffix(raw, "%"); ok {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return 0, 0
		}
		return min(v, 100), 100
	}
	if n, d, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(n))
		den, err2 := strconv.Atoi(strings.TrimSpace(d))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
