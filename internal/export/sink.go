package export

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"

	"github.com/ivlev/lyric2video/internal/config"
)

// CaptureSink receives composited frames and assembles the output container.
// Abstracted so the pipeline's state machine can be tested without a real
// encoder, and so another encoder backend can slot in.
type CaptureSink interface {
	Start(params config.ExportParams) error
	WriteFrame(img *image.RGBA) error
	// Finish flushes the stream and closes the container.
	Finish() error
	// Abort kills the encoder and removes the partial output file. Safe to
	// call at any point after Start, including after a failed Finish.
	Abort()
}

// FFmpegSink pipes raw RGBA frames into an ffmpeg child process that encodes
// them and muxes the source audio in one pass.
type FFmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	log    bytes.Buffer
	output string
}

func NewFFmpegSink() *FFmpegSink {
	return &FFmpegSink{}
}

func (s *FFmpegSink) Start(params config.ExportParams) error {
	args := buildFFmpegArgs(params)
	s.output = params.OutputPath

	s.cmd = exec.Command("ffmpeg", args...)
	s.cmd.Stdout = &s.log
	s.cmd.Stderr = &s.log

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	return nil
}

func buildFFmpegArgs(p config.ExportParams) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
	}
	if p.AudioPath != "" {
		args = append(args, "-i", p.AudioPath, "-map", "0:v", "-map", "1:a")
	}

	args = append(args,
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", p.VideoEncoder,
	)

	// Качество в зависимости от энкодера
	switch p.VideoEncoder {
	case "h264_videotoolbox":
		bitrate := p.Quality * 100 // кбит/с. 75 -> 7.5Мбит/с
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", p.Quality))
	case "libvpx-vp9":
		args = append(args, "-crf", fmt.Sprintf("%d", p.Quality), "-b:v", "0")
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", p.Quality), "-preset", "medium")
	}

	if p.AudioPath != "" {
		if p.Container == "webm" {
			args = append(args, "-c:a", "libopus")
		} else {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		}
	}

	args = append(args, p.OutputPath)
	return args
}

// WriteFrame streams one frame. The surface is always a zero-origin RGBA
// with standard stride, so Pix can go to the pipe directly.
func (s *FFmpegSink) WriteFrame(img *image.RGBA) error {
	if s.stdin == nil {
		return fmt.Errorf("ffmpeg sink not started")
	}
	b := img.Bounds()
	if img.Stride != b.Dx()*4 || img.Rect.Min != (image.Point{}) {
		return fmt.Errorf("frame has non-standard layout: %v stride %d", b, img.Stride)
	}
	if _, err := s.stdin.Write(img.Pix); err != nil {
		return fmt.Errorf("ffmpeg write frame: %w (лог: %s)", err, s.tail())
	}
	return nil
}

func (s *FFmpegSink) Finish() error {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w (лог: %s)", err, s.tail())
	}
	if _, err := os.Stat(s.output); err != nil {
		return fmt.Errorf("ffmpeg завершился, но файл не создан: %w", err)
	}
	return nil
}

func (s *FFmpegSink) Abort() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
		s.cmd = nil
	}
	if s.output != "" {
		// Недописанный контейнер бесполезен — удаляем.
		os.Remove(s.output)
	}
}

// tail returns the last chunk of ffmpeg's log for error messages.
func (s *FFmpegSink) tail() string {
	const n = 400
	b := s.log.Bytes()
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
