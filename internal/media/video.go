package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg decodes video files by piping raw RGB frames out of an ffmpeg
// subprocess. Stream metadata comes from ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpeg() (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

type probeResult struct {
	width     int
	height    int
	numFrames int
}

// VideoSource streams the frames of one video file in decode order.
type VideoSource struct {
	name   string
	path   string
	probe  probeResult
	valid  bool
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	buf    []byte
	next   *Frame
	index  int
	done   bool
	stderr bytes.Buffer
	err    error
}

// Open probes the video at path and starts decoding it. A file ffprobe cannot
// read, or one with no video frames, is returned as an invalid source rather
// than an error.
func (f *FFmpeg) Open(path string) (*VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	vs := &VideoSource{
		name: SourceName(FormatVideo, filepath.Base(path)),
		path: path,
	}

	probe, err := f.probe(path)
	if err != nil || probe.numFrames <= 0 || probe.width <= 0 || probe.height <= 0 {
		return vs, nil
	}
	vs.probe = probe

	if err := vs.start(exec.Command(f.ffmpegPath, decodeArgs(path)...)); err != nil {
		return nil, err
	}
	return vs, nil
}

// decodeArgs makes ffmpeg write every frame of path as packed RGB at the
// probed coded size. Auto-rotation is disabled since it would swap the frame
// dimensions without changing the byte count.
func decodeArgs(path string) []string {
	return []string{
		"-nostdin",
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

func (vs *VideoSource) start(cmd *exec.Cmd) error {
	cmd.Stderr = &vs.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	vs.cmd = cmd
	vs.stdout = stdout
	vs.reader = bufio.NewReaderSize(stdout, 1<<20)
	vs.buf = make([]byte, vs.probe.width*vs.probe.height*3)
	vs.valid = true
	return nil
}

func (f *FFmpeg) probe(path string) (probeResult, error) {
	cmd := exec.Command(f.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,nb_read_packets",
		"-of", "csv=p=0",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeOutput(stdout.String())
}

// parseProbeOutput reads "width,height,frames" as printed by ffprobe's csv
// writer.
func parseProbeOutput(out string) (probeResult, error) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return probeResult{}, fmt.Errorf("unexpected ffprobe output: %q", out)
	}

	values := make([]int, 3)
	for i := range values {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return probeResult{}, fmt.Errorf("unexpected ffprobe field %q: %w", parts[i], err)
		}
		values[i] = v
	}

	return probeResult{width: values[0], height: values[1], numFrames: values[2]}, nil
}

func (vs *VideoSource) Name() string   { return vs.name }
func (vs *VideoSource) Valid() bool    { return vs.valid }
func (vs *VideoSource) NumFrames() int { return vs.probe.numFrames }
func (vs *VideoSource) Height() int    { return vs.probe.height }
func (vs *VideoSource) Width() int     { return vs.probe.width }

// HasNext decodes one frame ahead so it can answer without guessing from the
// probed frame count.
func (vs *VideoSource) HasNext() bool {
	if vs.next != nil {
		return true
	}
	if vs.done || !vs.valid {
		return false
	}

	if _, err := io.ReadFull(vs.reader, vs.buf); err != nil {
		vs.done = true
		vs.finish(err)
		return false
	}

	frame := Frame{Index: vs.index, Image: rgb24ToImage(vs.buf, vs.probe.width, vs.probe.height)}
	vs.index++
	vs.next = &frame
	return true
}

// finish reaps ffmpeg once its output ends and records a decode failure when
// the process failed or stopped before the probed frame count.
func (vs *VideoSource) finish(readErr error) {
	waitErr := vs.cmd.Wait()
	vs.cmd = nil

	if waitErr == nil && vs.index >= vs.probe.numFrames && errors.Is(readErr, io.EOF) {
		return
	}
	msg := strings.TrimSpace(vs.stderr.String())
	if waitErr == nil {
		waitErr = readErr
	}
	vs.err = fmt.Errorf("ffmpeg stopped after %d of %d frames of %s: %v: %s",
		vs.index, vs.probe.numFrames, vs.name, waitErr, msg)
}

// ReadFrame returns the next frame, io.EOF at the end of a complete stream,
// or the decode failure that ended the stream early.
func (vs *VideoSource) ReadFrame() (Frame, error) {
	if !vs.HasNext() {
		if vs.err != nil {
			return Frame{}, vs.err
		}
		return Frame{}, io.EOF
	}
	frame := *vs.next
	vs.next = nil
	return frame, nil
}

func (vs *VideoSource) Close() error {
	if vs.cmd == nil {
		return nil
	}
	vs.stdout.Close()
	if vs.cmd.Process != nil {
		_ = vs.cmd.Process.Kill()
	}
	_ = vs.cmd.Wait()
	vs.cmd = nil
	return nil
}

func rgb24ToImage(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
