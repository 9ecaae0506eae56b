// Package crowd produces the crowd density reading shown to pilgrims. The
// value is simulated: no sensor or model backs it.
package crowd

import (
	"math/rand"
	"sync"
	"time"
)

type Level string

const (
	LevelGood    Level = "good"
	LevelWarning Level = "warning"
	LevelHigh    Level = "high crowd"
)

type Reading struct {
	Percent int
	Level   Level
	Color   string
}

// Fraction is Percent scaled to [0,1] for progress bars.
func (r Reading) Fraction() float64 { return float64(r.Percent) / 100 }

// Classify maps a percentage onto the status card colours.
func Classify(percent int) Reading {
	switch {
	case percent > 80:
		return Reading{percent, LevelHigh, "#EF4444"}
	case percent >= 60:
		return Reading{percent, LevelWarning, "#F59E0B"}
	default:
		return Reading{percent, LevelGood, "#10B981"}
	}
}

// Simulator draws readings uniformly from [min, max].
type Simulator struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	min, max int
}

func NewSimulator(min, max int, src rand.Source) *Simulator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if max < min {
		min, max = max, min
	}
	return &Simulator{rnd: rand.New(src), min: min, max: max}
}

func (s *Simulator) Sample() Reading {
	s.mu.Lock()
	v := s.min + s.rnd.Intn(s.max-s.min+1)
	s.mu.Unlock()
	return Classify(v)
}
