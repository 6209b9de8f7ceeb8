package sim

import (
	"math"
	"strconv"
)

// Tick is the discrete unit of simulated time.
// All arithmetic on ticks is integer arithmetic; real-valued quantities
// (scaled WCETs, virtual times) are converted with FloorTick or CeilTick.
type Tick int64

// MaxTick means "never".
const MaxTick Tick = math.MaxInt64

// FloorTick converts a real value to the largest Tick not greater than v.
func FloorTick(v float64) Tick {
	if v >= float64(MaxTick) {
		return MaxTick
	}
	return Tick(math.Floor(v))
}

// CeilTick converts a real value to the smallest Tick not less than v.
func CeilTick(v float64) Tick {
	if v >= float64(MaxTick) {
		return MaxTick
	}
	return Tick(math.Ceil(v))
}

// Float returns the tick as a float64.
func (t Tick) Float() float64 {
	return float64(t)
}

func (t Tick) String() string {
	if t == MaxTick {
		return "inf"
	}
	return strconv.FormatInt(int64(t), 10)
}

// MaxOf returns the later of two ticks.
func MaxOf(a, b Tick) Tick {
	if a > b {
		return a
	}
	return b
}

// MinOf returns the earlier of two ticks.
func MinOf(a, b Tick) Tick {
	if a < b {
		return a
	}
	return b
}
