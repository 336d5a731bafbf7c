package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"ripley/internal/event"
	"ripley/pkg/logger"
)

var (
	log = logger.Get("ArtifactStore")

	// ErrNotFound is returned when serving an artifact whose ID is unknown,
	// malformed, or already consumed. Callers surface this as a 404, never
	// as a server fault.
	ErrNotFound = errors.New("no artifact found")

	artifactNamePattern = regexp.MustCompile(`^(video|audio)_\d+\.(mp4|mp3)$`)
)

type Kind int

const (
	Video Kind = iota
	Audio
)

func (kind Kind) String() string {
	if kind == Audio {
		return "audio"
	}

	return "video"
}

func (kind Kind) extension() string {
	if kind == Audio {
		return "mp3"
	}

	return "mp4"
}

type (
	Config struct {
		TempDirPath string        `yaml:"temp_dir" env:"TEMP_DIR" env-default:"/tmp/ripley"`
		TTL         time.Duration `yaml:"artifact_ttl" env:"ARTIFACT_TTL"`
	}

	// Artifact is a generated, single-use downloadable file tracked by the
	// store. The ID doubles as the on-disk filename and is derived from a
	// high-resolution timestamp, never from request input.
	Artifact struct {
		ID        string
		Kind      Kind
		Path      string
		CreatedAt time.Time
	}

	// Store owns the temp directory in which all generated artifacts live.
	// It allocates collision-resistant filenames, streams each file to a
	// consumer at most once, and deletes the underlying file as soon as the
	// transfer finishes.
	Store struct {
		*sync.Mutex
		rootDir   string
		ttl       time.Duration
		eventBus  event.EventDispatcher
		lastStamp int64
	}
)

// NewStore constructs a Store rooted at the configured temp directory,
// creating the directory if it is missing. An error is returned if the
// path exists but is not a directory, or cannot be created.
func NewStore(config Config, eventBus event.EventDispatcher) (*Store, error) {
	if info, err := os.Stat(config.TempDirPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("temp path '%s' is not a directory", config.TempDirPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(config.TempDirPath, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("temp path '%s' could not be created: %w", config.TempDirPath, err)
		}
	} else {
		return nil, fmt.Errorf("temp path '%s' could not be accessed: %w", config.TempDirPath, err)
	}

	return &Store{
		Mutex:    &sync.Mutex{},
		rootDir:  config.TempDirPath,
		ttl:      config.TTL,
		eventBus: eventBus,
	}, nil
}

// Run blocks until the provided context is cancelled. If an artifact TTL is
// configured then unconsumed artifacts older than the TTL are swept from the
// temp directory on a periodic tick; without a TTL no sweeping occurs and
// orphaned artifacts survive until the next restart.
func (store *Store) Run(ctx context.Context) error {
	if store.ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(store.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			store.sweepExpired()
		case <-ctx.Done():
			return nil
		}
	}
}

// Create allocates a new Artifact of the given kind with a unique, time
// derived filename inside the store's temp directory. The file itself is NOT
// created; the caller is expected to write it before the artifact is served.
func (store *Store) Create(kind Kind) Artifact {
	store.Lock()
	defer store.Unlock()

	stamp := time.Now().UnixNano()
	if stamp <= store.lastStamp {
		// Clock resolution collision with the previous allocation.
		stamp = store.lastStamp + 1
	}
	store.lastStamp = stamp

	id := fmt.Sprintf("%s_%d.%s", kind, stamp, kind.extension())
	return Artifact{
		ID:        id,
		Kind:      kind,
		Path:      filepath.Join(store.rootDir, id),
		CreatedAt: time.Now(),
	}
}

// ServeOnce looks up the artifact of the given kind with the given ID and
// returns a handle streaming its content. Closing the handle deletes the
// underlying file, so each artifact is servable exactly once; a concurrent
// duplicate request racing the delete simply loses and sees ErrNotFound.
// Unknown, malformed or already-consumed IDs all yield ErrNotFound.
func (store *Store) ServeOnce(kind Kind, id string) (*Handle, error) {
	if !store.isValidID(kind, id) {
		return nil, ErrNotFound
	}

	path := filepath.Join(store.rootDir, id)
	file, err := os.Open(path)
	if err != nil {
		return nil, ErrNotFound
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ErrNotFound
	}

	return &Handle{store: store, file: file, id: id, size: info.Size()}, nil
}

// Remove deletes the file backing the provided artifact, if any. Used by the
// pipeline to clean up on its error path; missing files are not an error.
func (store *Store) Remove(artifact Artifact) {
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Failed to remove artifact %s: %v\n", artifact.ID, err)
	}
}

// isValidID reports whether the requested ID is a well-formed artifact name
// of the expected kind. IDs are system-generated so anything containing path
// separators, traversal sequences or a foreign prefix is rejected outright.
func (store *Store) isValidID(kind Kind, id string) bool {
	if filepath.Base(id) != id || !artifactNamePattern.MatchString(id) {
		return false
	}

	return kind.String() == id[:len(kind.String())]
}

// sweepExpired removes artifacts whose backing file has outlived the TTL.
func (store *Store) sweepExpired() {
	entries, err := os.ReadDir(store.rootDir)
	if err != nil {
		log.Emit(logger.ERROR, "Artifact sweep failed to read temp directory: %v\n", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !artifactNamePattern.MatchString(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > store.ttl {
			log.Emit(logger.REMOVE, "Sweeping expired artifact %s\n", entry.Name())
			if err := os.Remove(filepath.Join(store.rootDir, entry.Name())); err != nil {
				log.Emit(logger.WARNING, "Failed to sweep artifact %s: %v\n", entry.Name(), err)
			}
		}
	}
}

// Handle streams the content of a single artifact. The first Close consumes
// the artifact: the underlying file is deleted best-effort regardless of
// whether the transfer completed or the client aborted mid-stream.
type Handle struct {
	store *Store
	file  *os.File
	id    string
	size  int64

	closed bool
}

func (handle *Handle) Read(p []byte) (int, error) { return handle.file.Read(p) }
func (handle *Handle) Size() int64                { return handle.size }
func (handle *Handle) ID() string                 { return handle.id }

func (handle *Handle) Close() error {
	if handle.closed {
		return nil
	}
	handle.closed = true

	name := handle.file.Name()
	if err := handle.file.Close(); err != nil {
		log.Emit(logger.WARNING, "Failed to close artifact %s after serving: %v\n", handle.id, err)
	}

	if err := os.Remove(name); err != nil {
		log.Emit(logger.WARNING, "Failed to delete artifact %s after serving: %v\n", handle.id, err)
	} else {
		log.Emit(logger.REMOVE, "Artifact %s consumed and deleted\n", handle.id)
	}

	if handle.store.eventBus != nil {
		handle.store.eventBus.Dispatch(event.ARTIFACT_CONSUMED, handle.id)
	}

	return nil
}

var _ io.ReadCloser = (*Handle)(nil)
