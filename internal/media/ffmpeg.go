package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FFmpegSource decodes a video file or stream through an ffmpeg subprocess
// emitting an MJPEG pipe. Frames are downscaled to the target width inside
// ffmpeg, preserving aspect ratio, so detection payloads stay bounded.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	chunk  []byte
	index  int
	total  int
	log    zerolog.Logger
}

// Options configure how a source is opened.
type Options struct {
	// FFmpegPath and FFprobePath default to the binaries on PATH.
	FFmpegPath  string
	FFprobePath string
	// TargetWidth scales frames down before they leave ffmpeg. Zero keeps
	// the native resolution.
	TargetWidth int
	// FPS limits live-stream frame rate. Ignored for files.
	FPS int
}

func (o Options) ffmpeg() string {
	if o.FFmpegPath != "" {
		return o.FFmpegPath
	}
	return "ffmpeg"
}

func (o Options) ffprobe() string {
	if o.FFprobePath != "" {
		return o.FFprobePath
	}
	return "ffprobe"
}

// OpenFile opens a video file for a full single pass. The frame count is
// probed up front for progress reporting; an unknown count probes to zero
// and progress becomes indeterminate downstream.
func OpenFile(ctx context.Context, path string, opts Options, log zerolog.Logger) (*FFmpegSource, error) {
	total := probeFrameCount(ctx, opts.ffprobe(), path, log)

	args := []string{"-i", path}
	if opts.TargetWidth > 0 {
		args = append(args, "-vf", scaleFilter(opts.TargetWidth))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")

	return startFFmpeg(ctx, opts.ffmpeg(), args, total, log)
}

// OpenStream opens a live RTSP or HTTP stream. The stream has no frame
// count; it runs until closed.
func OpenStream(ctx context.Context, url string, opts Options, log zerolog.Logger) (*FFmpegSource, error) {
	var args []string
	if strings.HasPrefix(url, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", url)
	if opts.TargetWidth > 0 {
		args = append(args, "-vf", scaleFilter(opts.TargetWidth))
	}
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FPS))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")

	return startFFmpeg(ctx, opts.ffmpeg(), args, 0, log)
}

// scaleFilter downscales to the target width with an even computed height,
// preserving aspect ratio. Upscaling is avoided for already-small sources.
func scaleFilter(width int) string {
	return fmt.Sprintf("scale='min(%d,iw)':-2", width)
}

func startFFmpeg(ctx context.Context, bin string, args []string, total int, log zerolog.Logger) (*FFmpegSource, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	log.Debug().Str("bin", bin).Strs("args", args).Msg("started ffmpeg frame source")

	return &FFmpegSource{
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, 0, 1<<20),
		chunk:  make([]byte, 8192),
		total:  total,
		log:    log,
	}, nil
}

// Next returns the next frame, blocking until one is available. io.EOF
// signals a cleanly exhausted source.
func (s *FFmpegSource) Next() (Frame, error) {
	for {
		if frame := ExtractJPEGFrame(&s.buf); frame != nil {
			s.index++
			return Frame{Index: s.index, Data: frame}, nil
		}

		n, err := s.stdout.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("read ffmpeg output: %w", err)
		}
	}
}

func (s *FFmpegSource) TotalFrames() int {
	return s.total
}

func (s *FFmpegSource) Close() error {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
	return nil
}

// ExtractJPEGFrame cuts one complete JPEG (SOI..EOI) off the front of the
// buffer, or returns nil when no complete frame is buffered yet.
func ExtractJPEGFrame(buffer *[]byte) []byte {
	b := *buffer
	if len(b) < 4 {
		return nil
	}

	start := bytes.Index(b, []byte{0xFF, 0xD8})
	if start == -1 {
		return nil
	}

	end := -1
	for i := start + 2; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}

	frame := make([]byte, end-start)
	copy(frame, b[start:end])
	*buffer = b[end:]
	return frame
}

// probeFrameCount asks ffprobe for the container's frame count. Returns 0
// for anything it cannot determine, which callers must treat as unknown.
func probeFrameCount(ctx context.Context, bin, path string, log zerolog.Logger) int {
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("ffprobe frame count failed, progress will be indeterminate")
		return 0
	}

	value := strings.TrimSpace(string(out))
	if value == "" || value == "N/A" {
		return 0
	}

	total, err := strconv.Atoi(value)
	if err != nil || total < 0 {
		return 0
	}
	return total
}
