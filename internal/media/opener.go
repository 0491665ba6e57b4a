package media

import (
	"context"

	"github.com/rs/zerolog"
)

// Opener binds the ffmpeg binaries and logger once so callers only supply
// per-source parameters.
type Opener struct {
	ffmpegPath  string
	ffprobePath string
	log         zerolog.Logger
}

func NewOpener(ffmpegPath, ffprobePath string, log zerolog.Logger) *Opener {
	return &Opener{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log,
	}
}

func (o *Opener) OpenFile(ctx context.Context, path string, targetWidth int) (FrameSource, error) {
	return OpenFile(ctx, path, Options{
		FFmpegPath:  o.ffmpegPath,
		FFprobePath: o.ffprobePath,
		TargetWidth: targetWidth,
	}, o.log)
}

func (o *Opener) OpenStream(ctx context.Context, url string, targetWidth, fps int) (FrameSource, error) {
	return OpenStream(ctx, url, Options{
		FFmpegPath:  o.ffmpegPath,
		FFprobePath: o.ffprobePath,
		TargetWidth: targetWidth,
		FPS:         fps,
	}, o.log)
}
