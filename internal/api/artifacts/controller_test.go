package artifacts_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ripley/internal/api/artifacts"
	"ripley/internal/artifact"
	"ripley/internal/event"
	"ripley/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

func newRouter(t *testing.T) (*echo.Echo, *artifact.Store) {
	store, err := artifact.NewStore(artifact.Config{TempDirPath: t.TempDir()}, event.New())
	require.Nil(t, err)

	ec := echo.New()
	controller := artifacts.New(store)
	controller.SetVideoRoutes(ec.Group("/video"))
	controller.SetAudioRoutes(ec.Group("/audio"))

	return ec, store
}

func Test_Get_StreamsArtifactExactlyOnce(t *testing.T) {
	t.Parallel()
	ec, store := newRouter(t)

	created := store.Create(artifact.Video)
	require.Nil(t, os.WriteFile(created.Path, []byte("fake mp4 payload"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/video/"+created.ID+"/", nil)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake mp4 payload", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "video/mp4")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), created.ID)
	assert.NoFileExists(t, created.Path, "artifact must be deleted after serving")

	// A repeat request for the same artifact must miss.
	rec = httptest.NewRecorder()
	ec.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/"+created.ID+"/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Get_ServesAudioWithAudioContentType(t *testing.T) {
	t.Parallel()
	ec, store := newRouter(t)

	created := store.Create(artifact.Audio)
	require.Nil(t, os.WriteFile(created.Path, []byte("fake mp3 payload"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/audio/"+created.ID+"/", nil)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "audio/mpeg")
	assert.Equal(t, "fake mp3 payload", rec.Body.String())
}

func Test_Get_UnknownArtifactYieldsNotFound(t *testing.T) {
	t.Parallel()
	ec, _ := newRouter(t)

	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/video_999.mp4/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Get_KindMismatchYieldsNotFound(t *testing.T) {
	t.Parallel()
	ec, store := newRouter(t)

	created := store.Create(artifact.Audio)
	require.Nil(t, os.WriteFile(created.Path, []byte("payload"), 0o644))

	// Requesting an audio artifact via the video route must not serve it.
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/"+created.ID+"/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.FileExists(t, created.Path)
}

func Test_Get_TraversalAttemptYieldsNotFound(t *testing.T) {
	t.Parallel()
	ec, _ := newRouter(t)

	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/..%2F..%2Fetc%2Fpasswd/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
