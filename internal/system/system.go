package system

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	}
}

func findLatest(dir string, extensions []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		match := false
		for _, ext := range extensions {
			if strings.HasSuffix(strings.ToLower(f.Name()), ext) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено подходящих файлов", dir)
	}
	return latestFile, nil
}

// FindLatestAudio returns the most recently modified audio file in dir.
func FindLatestAudio(dir string) (string, error) {
	return findLatest(dir, []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"})
}

// FindLatestTimeline returns the most recently modified collaborator payload
// or authored scenario in dir.
func FindLatestTimeline(dir string) (string, error) {
	return findLatest(dir, []string{".json", ".yaml", ".yml"})
}

// GetAudioDuration asks ffprobe for the media duration in milliseconds. The
// audio file is a black box here; only its clock length matters.
func GetAudioDuration(path string) (int64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %v: %s", err, strings.TrimSpace(string(out)))
	}

	var seconds float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &seconds)
	if err != nil {
		return 0, err
	}
	return int64(seconds * 1000), nil
}

// ProbeFormat picks the best available encoder and matching container.
// Приоритеты: VideoToolbox (macOS) → NVENC → libx264; если сборка ffmpeg
// вообще без h264 — откатываемся на VP9/webm.
func ProbeFormat() (encoder, container string) {
	cmd := exec.Command("ffmpeg", "-encoders")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "libx264", "mp4"
	}
	return ChooseFormat(string(out))
}

// ChooseFormat resolves the encoder/container fallback order against the
// output of `ffmpeg -encoders`. Split out of ProbeFormat for testability.
func ChooseFormat(encodersOutput string) (encoder, container string) {
	for _, enc := range []string{"h264_videotoolbox", "h264_nvenc", "libx264"} {
		if strings.Contains(encodersOutput, enc) {
			return enc, "mp4"
		}
	}
	if strings.Contains(encodersOutput, "libvpx-vp9") {
		return "libvpx-vp9", "webm"
	}
	// Последний шанс: пусть ffmpeg сам откажет с внятной ошибкой.
	return "libx264", "mp4"
}
