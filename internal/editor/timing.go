package editor

import "time"

const (
	// DefaultFrameRate is the loop rate when none is configured.
	DefaultFrameRate = 60
	// EditChanSize is the edit queue capacity.
	EditChanSize = 256
	// ViewerChanSize is how many snapshots a viewer may lag behind.
	ViewerChanSize = 2
)

// FrameInterval converts a frame rate to the loop tick period.
func FrameInterval(rate int) time.Duration {
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return time.Second / time.Duration(rate)
}

// SecsToFrames converts a duration in seconds to loop frames, at least one.
func SecsToFrames(s float64, rate int) int {
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	f := int(s * float64(rate))
	if f < 1 {
		f = 1
	}
	return f
}
