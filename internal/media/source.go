package media

// Frame is one decoded video frame as JPEG bytes. Index is 1-based and
// monotonically increasing within a source.
type Frame struct {
	Index int
	Data  []byte
}

// FrameSource yields the frames of one video source in order. Next returns
// io.EOF when the source is exhausted.
type FrameSource interface {
	Next() (Frame, error)
	// TotalFrames is the number of frames in the source, or 0 when the
	// container does not carry a frame count (live streams always return 0).
	TotalFrames() int
	Close() error
}
