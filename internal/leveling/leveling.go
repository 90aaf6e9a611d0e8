// Package leveling maps cumulative experience to levels.
//
// A Curve gives the experience cost attributed to each level. Standing at
// level n >= 2 requires Cost(1) + ... + Cost(n) cumulative experience; level 1
// is free. With the default curve (100 per level step) reaching level 2 takes
// 300, level 3 takes 600 and level 4 takes 1000.
package leveling

// Curve returns the experience cost of a level. It must be positive for every
// level >= 1.
type Curve func(level int) int64

// Linear costs step*level for each level.
func Linear(step int64) Curve {
	return func(level int) int64 { return step * int64(level) }
}

// Default is the curve used by stats and relationships.
var Default = Linear(100)

// Threshold is the cumulative experience required to stand at level.
func (c Curve) Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	var sum int64
	for k := 1; k <= level; k++ {
		sum += c(k)
	}
	return sum
}

// CanLevelUp reports whether total meets the threshold of level+1.
func (c Curve) CanLevelUp(level int, total int64) bool {
	return total >= c.Threshold(level+1)
}

type Progress struct {
	Level         int   `json:"level"`
	TotalXP       int64 `json:"totalXp"`
	NextThreshold int64 `json:"nextThreshold"`
	Remaining     int64 `json:"remaining"`
	CanLevelUp    bool  `json:"canLevelUp"`
}

func (c Curve) Progress(level int, total int64) Progress {
	next := c.Threshold(level + 1)
	remaining := next - total
	if remaining < 0 {
		remaining = 0
	}
	return Progress{
		Level:         level,
		TotalXP:       total,
		NextThreshold: next,
		Remaining:     remaining,
		CanLevelUp:    total >= next,
	}
}

// Or returns c, or Default when c is nil.
func (c Curve) Or() Curve {
	if c == nil {
		return Default
	}
	return c
}
