package media

import "time"

// Format describes the PCM layout shared by every stage of the pipeline.
type Format struct {
	SampleRate  int
	FrameMillis int
}

// DefaultFormat is 48 kHz mono with 20 ms frames.
var DefaultFormat = Format{SampleRate: 48000, FrameMillis: 20}

const bytesPerSample = 2

// FrameSamples is the number of samples in one frame.
func (f Format) FrameSamples() int {
	return f.SampleRate * f.FrameMillis / 1000
}

// FrameBytes is the size of one frame on the wire.
func (f Format) FrameBytes() int {
	return f.FrameSamples() * bytesPerSample
}

// FrameDuration is the wall-clock length of one frame.
func (f Format) FrameDuration() time.Duration {
	return time.Duration(f.FrameMillis) * time.Millisecond
}

// SamplesFor converts a duration to a sample count.
func (f Format) SamplesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}
