package downloads_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ripley/internal/api/downloads"
	"ripley/internal/artifact"
	"ripley/internal/pipeline"
	"ripley/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

type pipelineServiceMock struct {
	processFn func(ctx context.Context, sourceURL string) (*pipeline.Result, error)
}

func (mock *pipelineServiceMock) Process(ctx context.Context, sourceURL string) (*pipeline.Result, error) {
	return mock.processFn(ctx, sourceURL)
}

type testValidator struct{ validate *validator.Validate }

func (v *testValidator) Validate(i interface{}) error { return v.validate.Struct(i) }

func performRequest(service *pipelineServiceMock, body string) *httptest.ResponseRecorder {
	ec := echo.New()
	ec.Validator = &testValidator{validate: validator.New()}
	downloads.New(service).SetRoutes(ec.Group("/download"))

	req := httptest.NewRequest(http.MethodPost, "/download/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)

	return rec
}

func Test_Create_ReturnsRetrievalPaths(t *testing.T) {
	t.Parallel()

	service := &pipelineServiceMock{processFn: func(_ context.Context, sourceURL string) (*pipeline.Result, error) {
		assert.Equal(t, "https://www.tiktok.com/@user/video/1234", sourceURL)
		return &pipeline.Result{
			VideoArtifact: artifact.Artifact{ID: "video_17000.mp4", Kind: artifact.Video},
			AudioArtifact: artifact.Artifact{ID: "audio_17001.mp3", Kind: artifact.Audio},
		}, nil
	}}

	rec := performRequest(service, `{"url": "https://www.tiktok.com/@user/video/1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "/video/video_17000.mp4", response["video_download"])
	assert.Equal(t, "/audio/audio_17001.mp3", response["audio_download"])
}

func Test_Create_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	service := &pipelineServiceMock{processFn: func(_ context.Context, _ string) (*pipeline.Result, error) {
		t.Fatal("pipeline must not be invoked for a malformed body")
		return nil, nil
	}}

	rec := performRequest(service, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Create_RejectsMissingURL(t *testing.T) {
	t.Parallel()

	service := &pipelineServiceMock{processFn: func(_ context.Context, _ string) (*pipeline.Result, error) {
		t.Fatal("pipeline must not be invoked for an invalid body")
		return nil, nil
	}}

	assert.Equal(t, http.StatusBadRequest, performRequest(service, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, performRequest(service, `{"url": "not a url"}`).Code)
}

func Test_Create_MapsResolutionFailureToBadRequest(t *testing.T) {
	t.Parallel()

	service := &pipelineServiceMock{processFn: func(_ context.Context, _ string) (*pipeline.Result, error) {
		return nil, pipeline.ErrResolutionFailed
	}}

	rec := performRequest(service, `{"url": "https://www.tiktok.com/@user/video/1234"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Create_MapsPipelineFailureToInternalError(t *testing.T) {
	t.Parallel()

	for _, stageErr := range []error{pipeline.ErrFetchFailed, pipeline.ErrTranscodeFailed, errors.New("unexpected")} {
		service := &pipelineServiceMock{processFn: func(_ context.Context, _ string) (*pipeline.Result, error) {
			return nil, stageErr
		}}

		rec := performRequest(service, `{"url": "https://www.tiktok.com/@user/video/1234"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), stageErr.Error(), "stage error detail must not leak to the response")
	}
}
