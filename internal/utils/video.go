package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// VideoInfo is what ffprobe reports for the first video stream.
type VideoInfo struct {
	Width, Height int
	FPS           float64 // average rate, 0 if unknown
	Frames        int     // container frame count, 0 if unknown
}

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// ProbeVideo reads stream metadata. It is instant but the frame count may be
// missing for some containers.
func ProbeVideo(path string) (VideoInfo, error) {
	out, err := exec.Command("ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,nb_frames", "-of", "json", path).Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}

	s := res.Streams[0]
	info := VideoInfo{Width: s.Width, Height: s.Height, FPS: parseRate(s.AvgFrameRate)}
	// "N/A" and friends leave the count unknown
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.Frames = n
	}
	return info, nil
}

// parseRate turns ffprobe's "30000/1001" into frames per second.
func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// countPackets decodes the container index to count video packets. Slow.
func countPackets(path string) (int, error) {
	out, err := exec.Command("ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, fmt.Errorf("no video stream")
	}
	return strconv.Atoi(res.Streams[0].NbReadPackets)
}

// EstimateFrames predicts how many frames ffmpeg will emit for path when
// resampled to fps (0 keeps the source rate). It returns -1 when unknown,
// which turns the progress bar into a spinner.
func EstimateFrames(path string, fps float64) int {
	log := logrus.WithField("path", path)
	if _, err := exec.LookPath("ffprobe"); err != nil {
		log.Warn("ffprobe not found, no progress estimate")
		return -1
	}

	info, err := ProbeVideo(path)
	if err != nil {
		log.WithError(err).Warn("Cannot probe video")
		return -1
	}
	if info.Frames == 0 {
		log.Info("Frame count missing from metadata, counting packets")
		if info.Frames, err = countPackets(path); err != nil {
			log.WithError(err).Warn("Cannot count frames")
			return -1
		}
	}
	return scaleFrames(info, fps)
}

func scaleFrames(info VideoInfo, fps float64) int {
	if info.Frames <= 0 {
		return -1
	}
	if fps <= 0 || info.FPS <= 0 {
		return info.Frames
	}
	return int(float64(info.Frames)*fps/info.FPS + 0.5)
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
// Bytes outside a frame are dropped as they go by so the buffer does not grow on garbage.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) < 2 {
			return 0, nil, nil
		}
		// Keep the last byte, it may be the first half of a marker
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+2:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// NewFFmpegCmd creates a standard decoder pipe
// It configures FFmpeg to output MJPEG frames to Stdout, optionally resampled
// to fps frames per second (0 keeps the source rate).
func NewFFmpegCmd(inputPath string, fps float64) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", inputPath}
	if fps > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64))
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return NewSafeCommand("ffmpeg", args...)
}

// GenerateVideoID hashes path, size and modification time. Snapshot folders
// are named after it so reruns of the same file land in the same place.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(fmt.Appendf(nil, "%s-%d-%d", path, info.Size(), info.ModTime().UnixNano()))
	return hex.EncodeToString(hash[:]), nil
}
