// Package ffmpeg wraps the out-of-process FFmpeg engine used to derive
// audio-only renditions from fetched video files.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/floostack/transcoder/ffmpeg"
	"ripley/pkg/logger"
)

var log = logger.Get("FFmpeg")

type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN" env-default:"ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_bin" env:"FFPROBE_BIN" env-default:"ffprobe"`
	AudioBitrate   string `yaml:"audio_bitrate" env:"AUDIO_BITRATE" env-default:"128k"`
}

type Progress struct {
	FramesProcessed string
	CurrentTime     string
	CurrentBitrate  string
	Progress        float64
	Speed           string
}

// Transcoder drives FFmpeg commands on the host machine. Construction fails
// if the configured binary cannot be invoked, which callers should treat as
// a fatal precondition before accepting any traffic.
type Transcoder struct {
	config Config
}

// New verifies the configured FFmpeg binary is present and invocable before
// returning a usable Transcoder. The availability probe runs `ffmpeg -version`
// once; a missing or broken binary is reported as an error rather than being
// discovered mid-request.
func New(config Config) (*Transcoder, error) {
	if err := exec.Command(config.FfmpegBinPath, "-version").Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg binary '%s' is not invocable: %w", config.FfmpegBinPath, err)
	}

	return &Transcoder{config: config}, nil
}

// ExtractAudio strips the video stream from the file at inputPath and encodes
// the audio at the configured fixed bitrate, writing the result to outputPath.
// The call blocks until the engine signals end-of-job or an error; progress
// updates are delivered to updateHandler when provided. There is no engine
// level timeout; cancellation is bounded only by the provided context.
func (transcoder *Transcoder) ExtractAudio(ctx context.Context, inputPath string, outputPath string, updateHandler func(*Progress)) error {
	skipVideo := true
	overwrite := true
	audioBitrate := transcoder.config.AudioBitrate
	opts := ffmpeg.Options{
		SkipVideo:    &skipVideo,
		AudioBitrate: &audioBitrate,
		Overwrite:    &overwrite,
	}

	instance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   transcoder.config.FfmpegBinPath,
			FfprobeBinPath:  transcoder.config.FfprobeBinPath,
		}).
		Input(inputPath).
		Output(outputPath).
		WithContext(&ctx)

	os.MkdirAll(filepath.Dir(outputPath), os.ModeDir|os.ModePerm)

	progressChannel, err := instance.Start(opts)
	if err != nil {
		return parseFfmpegError(err)
	}

	for {
		prog, ok := <-progressChannel
		if !ok {
			log.Emit(logger.DEBUG, "FFmpeg command for %s has closed its progress channel, job complete\n", outputPath)
			return nil
		}

		if updateHandler != nil {
			updateHandler(&Progress{
				FramesProcessed: prog.GetFramesProcessed(),
				CurrentTime:     prog.GetCurrentTime(),
				CurrentBitrate:  prog.GetCurrentBitrate(),
				Progress:        prog.GetProgress(),
				Speed:           prog.GetSpeed(),
			})
		}
	}
}

func parseFfmpegError(err error) error {
	// Try and pick out some relevant information from the HUGE
	// output log from ffmpeg. The error we get contains lots of information
	// about how the binary was compiled... this is useless info, we just
	// want the 'message' JSON that is encoded inside.
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) < 2 {
		return err
	}

	// ffmpeg error is returned as a JSON encoded string. Unmarshal so we can extract the
	// error string..
	var out map[string]interface{}
	jsonErr := json.Unmarshal([]byte(groups[1]), &out)
	if jsonErr != nil {
		// We failed to extract the info.. just use the entire string as our error
		return errors.New(groups[1])
	}

	// Extract the exception from this result. The message JSON is not under
	// our control, so an unexpected shape falls back to the raw message.
	ffmpegException, ok := out["error"].(map[string]interface{})
	if !ok {
		return errors.New(groups[1])
	}

	exceptionString, ok := ffmpegException["string"].(string)
	if !ok {
		return errors.New(groups[1])
	}

	return errors.New(exceptionString)
}
