package taskstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/server"
)

// fakeCatalog — каталог задач, считающий обращения.
type fakeCatalog struct {
	mu       sync.Mutex
	getCalls int
	err      error
}

func (c *fakeCatalog) GetTaskDefinition(_ context.Context, name, version string) (*server.TaskDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	if c.err != nil {
		return nil, c.err
	}
	return &server.TaskDefinition{Name: name, Version: version}, nil
}

func (c *fakeCatalog) DownloadTask(_ context.Context, _, _ string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []byte("zip"), nil
}

func newStoreEnv(t *testing.T) (*Store, *fakeCatalog, *execution.Context) {
	t.Helper()
	catalog := &fakeCatalog{}
	store := NewStore(catalog, t.TempDir(), nil)
	root := execution.NewRoot(uuid.New(), "job", domain.Variables{}, nil)
	return store, catalog, root
}

func task(name, version string) *domain.TaskInstance {
	return &domain.TaskInstance{InstanceID: uuid.New(), Name: name, Version: version}
}

// --- Store Tests ---

func TestStore_DownloadAndDefinition(t *testing.T) {
	store, _, root := newStoreEnv(t)

	tasks := []*domain.TaskInstance{task("compile", "1.0.0")}
	if err := store.Download(context.Background(), root, tasks); err != nil {
		t.Fatalf("download: %v", err)
	}

	def, err := store.Definition("compile", "1.0.0")
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	if def.Name != "compile" || def.Version != "1.0.0" {
		t.Errorf("definition = %+v", def)
	}
}

func TestStore_DownloadSkipsCached(t *testing.T) {
	store, catalog, root := newStoreEnv(t)

	tasks := []*domain.TaskInstance{task("compile", "1.0.0")}
	if err := store.Download(context.Background(), root, tasks); err != nil {
		t.Fatal(err)
	}
	if err := store.Download(context.Background(), root, tasks); err != nil {
		t.Fatal(err)
	}

	if catalog.getCalls != 1 {
		t.Errorf("cached version should not be re-downloaded, got %d calls", catalog.getCalls)
	}
}

func TestStore_DownloadDeduplicatesWithinJob(t *testing.T) {
	store, catalog, root := newStoreEnv(t)

	// Same task twice in one job with different inputs
	tasks := []*domain.TaskInstance{
		task("deploy", "1.0.0"),
		task("deploy", "1.0.0"),
	}
	if err := store.Download(context.Background(), root, tasks); err != nil {
		t.Fatal(err)
	}

	if catalog.getCalls != 1 {
		t.Errorf("duplicate instances should download once, got %d calls", catalog.getCalls)
	}
}

func TestStore_DownloadDistinctVersions(t *testing.T) {
	store, catalog, root := newStoreEnv(t)

	tasks := []*domain.TaskInstance{
		task("deploy", "1.0.0"),
		task("deploy", "2.0.0"),
	}
	if err := store.Download(context.Background(), root, tasks); err != nil {
		t.Fatal(err)
	}

	if catalog.getCalls != 2 {
		t.Errorf("distinct versions should each download, got %d calls", catalog.getCalls)
	}
}

func TestStore_DownloadCanceled(t *testing.T) {
	store, catalog, root := newStoreEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Download(ctx, root, []*domain.TaskInstance{task("compile", "1.0.0")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if catalog.getCalls != 0 {
		t.Error("canceled download should not touch the catalog")
	}
}

func TestStore_DownloadFailureRecordsError(t *testing.T) {
	store, catalog, root := newStoreEnv(t)
	catalog.err = errors.New("server gone")

	err := store.Download(context.Background(), root, []*domain.TaskInstance{task("compile", "1.0.0")})
	if err == nil {
		t.Fatal("expected error")
	}

	if root.ErrorText() == "" {
		t.Error("download failure should be recorded on the context")
	}
}

func TestStore_DownloadRejectsUnsafeNames(t *testing.T) {
	store, catalog, root := newStoreEnv(t)

	bad := []*domain.TaskInstance{
		task("../../etc", "1.0.0"),
		task("compile", "..\\..\\escape"),
		task("..", "1.0.0"),
		task("", "1.0.0"),
	}
	for _, tsk := range bad {
		err := store.Download(context.Background(), root, []*domain.TaskInstance{tsk})
		if !errors.Is(err, ErrUnsafeTaskRef) {
			t.Errorf("%q@%q: expected ErrUnsafeTaskRef, got %v", tsk.Name, tsk.Version, err)
		}
	}

	if catalog.getCalls != 0 {
		t.Error("unsafe reference should never reach the catalog")
	}
	if root.ErrorText() == "" {
		t.Error("rejection should be recorded on the context")
	}
}

func TestStore_DefinitionNotCached(t *testing.T) {
	store, _, _ := newStoreEnv(t)

	_, err := store.Definition("missing", "1.0.0")
	if !errors.Is(err, ErrTaskNotCached) {
		t.Errorf("expected ErrTaskNotCached, got %v", err)
	}
}
