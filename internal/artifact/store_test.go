package artifact_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ripley/internal/artifact"
	"ripley/internal/event"
	"ripley/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

func newStore(t *testing.T) *artifact.Store {
	store, err := artifact.NewStore(artifact.Config{TempDirPath: t.TempDir()}, event.New())
	require.Nil(t, err)

	return store
}

func Test_Create_AllocatesUniqueIDs(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		created := store.Create(artifact.Video)
		assert.False(t, seen[created.ID], "expected unique ID, got duplicate %s", created.ID)
		seen[created.ID] = true
	}
}

func Test_Create_NamesMatchKind(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	video := store.Create(artifact.Video)
	audio := store.Create(artifact.Audio)

	assert.Regexp(t, `^video_\d+\.mp4$`, video.ID)
	assert.Regexp(t, `^audio_\d+\.mp3$`, audio.ID)
	assert.Equal(t, video.ID, filepath.Base(video.Path))
}

func Test_ServeOnce_DeletesArtifactAfterServing(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	created := store.Create(artifact.Video)
	require.Nil(t, os.WriteFile(created.Path, []byte("fake mp4 payload"), 0o644))

	handle, err := store.ServeOnce(artifact.Video, created.ID)
	require.Nil(t, err)
	assert.Equal(t, created.ID, handle.ID())
	assert.Equal(t, int64(len("fake mp4 payload")), handle.Size())

	content, err := io.ReadAll(handle)
	require.Nil(t, err)
	assert.Equal(t, "fake mp4 payload", string(content))

	assert.Nil(t, handle.Close())
	assert.NoFileExists(t, created.Path)

	// Second retrieval must miss; the artifact was consumed.
	_, err = store.ServeOnce(artifact.Video, created.ID)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func Test_ServeOnce_ConsumesEvenWhenTransferAborted(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	created := store.Create(artifact.Audio)
	require.Nil(t, os.WriteFile(created.Path, []byte("fake mp3 payload"), 0o644))

	handle, err := store.ServeOnce(artifact.Audio, created.ID)
	require.Nil(t, err)

	// Close without reading anything, as if the client dropped mid-stream.
	assert.Nil(t, handle.Close())
	assert.NoFileExists(t, created.Path)
}

func Test_ServeOnce_RejectsMalformedIDs(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	for _, id := range []string{
		"",
		"video_.mp4",
		"video_123.mp3",
		"audio_123.mp4",
		"../video_123.mp4",
		"../../etc/passwd",
		"video_123.mp4/..",
		"notvideo_123.mp4",
	} {
		_, err := store.ServeOnce(artifact.Video, id)
		assert.ErrorIs(t, err, artifact.ErrNotFound, "expected malformed ID %q to yield ErrNotFound", id)
	}
}

func Test_ServeOnce_RejectsKindMismatch(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	created := store.Create(artifact.Video)
	require.Nil(t, os.WriteFile(created.Path, []byte("payload"), 0o644))

	_, err := store.ServeOnce(artifact.Audio, created.ID)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func Test_Close_DispatchesConsumptionEvent(t *testing.T) {
	t.Parallel()
	bus := event.New()
	store, err := artifact.NewStore(artifact.Config{TempDirPath: t.TempDir()}, bus)
	require.Nil(t, err)

	var consumedID string
	bus.RegisterHandlerFunction(event.ARTIFACT_CONSUMED, func(_ event.Event, payload event.Payload) {
		consumedID = payload.(string)
	})

	created := store.Create(artifact.Video)
	require.Nil(t, os.WriteFile(created.Path, []byte("payload"), 0o644))

	handle, err := store.ServeOnce(artifact.Video, created.ID)
	require.Nil(t, err)
	require.Nil(t, handle.Close())

	assert.Equal(t, created.ID, consumedID)

	// Repeated closes must not re-announce consumption.
	consumedID = ""
	assert.Nil(t, handle.Close())
	assert.Empty(t, consumedID)
}

func Test_Remove_IgnoresMissingFiles(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	created := store.Create(artifact.Video)
	store.Remove(created)

	require.Nil(t, os.WriteFile(created.Path, []byte("payload"), 0o644))
	store.Remove(created)
	assert.NoFileExists(t, created.Path)
}

func Test_NewStore_RejectsNonDirectoryPath(t *testing.T) {
	t.Parallel()
	filePath := filepath.Join(t.TempDir(), "occupied")
	require.Nil(t, os.WriteFile(filePath, []byte("x"), 0o644))

	_, err := artifact.NewStore(artifact.Config{TempDirPath: filePath}, event.New())
	assert.NotNil(t, err)
}

func Test_NewStore_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "artifacts")

	_, err := artifact.NewStore(artifact.Config{TempDirPath: path}, event.New())
	require.Nil(t, err)
	assert.DirExists(t, path)
}
