package ffmpeg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"ripley/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

func Test_ParseFfmpegError_ExtractsExceptionString(t *testing.T) {
	t.Parallel()

	err := errors.New(`ffmpeg version n6.0 ... huge compile log ... message: {"error": {"string": "output file already exists"}}`)
	assert.EqualError(t, parseFfmpegError(err), "output file already exists")
}

func Test_ParseFfmpegError_ReturnsOriginalWhenNoMessage(t *testing.T) {
	t.Parallel()

	err := errors.New("plain failure with no embedded message")
	assert.Equal(t, err, parseFfmpegError(err))
}

func Test_ParseFfmpegError_FallsBackOnInvalidJSON(t *testing.T) {
	t.Parallel()

	err := errors.New(`message: {not json at all}`)
	assert.EqualError(t, parseFfmpegError(err), "{not json at all}")
}

func Test_ParseFfmpegError_FallsBackOnUnexpectedShape(t *testing.T) {
	t.Parallel()

	// The error key is a plain string, not the expected object.
	err := errors.New(`message: {"error": "exit status 1"}`)
	assert.EqualError(t, parseFfmpegError(err), `{"error": "exit status 1"}`)

	// The object is present but carries no string field.
	err = errors.New(`message: {"error": {"code": 1}}`)
	assert.EqualError(t, parseFfmpegError(err), `{"error": {"code": 1}}`)
}
