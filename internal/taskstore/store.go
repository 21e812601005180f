package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/server"
)

// Ошибки хранилища задач.
var (
	// ErrTaskNotCached — определение задачи отсутствует в кэше.
	ErrTaskNotCached = errors.New("task definition not cached")

	// ErrUnsafeTaskRef — имя или версия задачи не годятся
	// как сегмент пути кэша.
	ErrUnsafeTaskRef = errors.New("unsafe task reference")
)

// Catalog — источник определений задач.
// Реализуется server.TaskServer.
type Catalog interface {
	GetTaskDefinition(ctx context.Context, name, version string) (*server.TaskDefinition, error)
	DownloadTask(ctx context.Context, name, version string) ([]byte, error)
}

// Store — локальный кэш определений задач.
//
// Определения скачиваются один раз и сохраняются на диск под
// директорией задач агента:
//
//	<dir>/<name>/<version>/manifest.json
//	<dir>/<name>/<version>/task.zip
//
// Повторное скачивание закэшированной версии не выполняется.
type Store struct {
	catalog Catalog
	dir     string
	logger  *slog.Logger
}

// NewStore создаёт хранилище задач поверх каталога сервера.
func NewStore(catalog Catalog, dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog: catalog,
		dir:     dir,
		logger:  logger,
	}
}

// Download скачивает определения всех задач job, которых ещё
// нет в кэше. Между задачами проверяется отмена: при отменённом
// ctx скачивание прерывается и возвращается ctx.Err().
func (s *Store) Download(ctx context.Context, ec *execution.Context, tasks []*domain.TaskInstance) error {
	seen := make(map[string]bool)

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := task.Name + "@" + task.Version
		if seen[key] {
			continue
		}
		seen[key] = true

		// Имя и версия приходят с сервера и становятся сегментами
		// пути кэша: "../" или разделители выведут за пределы dir.
		if !safeSegment(task.Name) || !safeSegment(task.Version) {
			err := fmt.Errorf("%w: %s", ErrUnsafeTaskRef, key)
			ec.AddError(err.Error())
			return err
		}

		if s.cached(task.Name, task.Version) {
			s.logger.Debug("task already cached", "task", key)
			continue
		}

		if err := s.download(ctx, task.Name, task.Version); err != nil {
			ec.AddError(fmt.Sprintf("download task %s: %v", key, err))
			return err
		}
		s.logger.Info("task downloaded", "task", key)
	}

	return nil
}

// Definition возвращает закэшированное определение задачи.
func (s *Store) Definition(name, version string) (*server.TaskDefinition, error) {
	raw, err := os.ReadFile(s.manifestPath(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrTaskNotCached, name, version)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var def server.TaskDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode manifest %s@%s: %w", name, version, err)
	}
	return &def, nil
}

// ArchivePath возвращает путь к закэшированному архиву задачи.
func (s *Store) ArchivePath(name, version string) string {
	return filepath.Join(s.taskDir(name, version), "task.zip")
}

// cached проверяет наличие полного кэша версии задачи.
func (s *Store) cached(name, version string) bool {
	if _, err := os.Stat(s.manifestPath(name, version)); err != nil {
		return false
	}
	if _, err := os.Stat(s.ArchivePath(name, version)); err != nil {
		return false
	}
	return true
}

// download скачивает определение и архив задачи в кэш.
func (s *Store) download(ctx context.Context, name, version string) error {
	def, err := s.catalog.GetTaskDefinition(ctx, name, version)
	if err != nil {
		return err
	}

	archive, err := s.catalog.DownloadTask(ctx, name, version)
	if err != nil {
		return err
	}

	dir := s.taskDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create task directory: %w", err)
	}

	manifest, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(s.manifestPath(name, version), manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(s.ArchivePath(name, version), archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// safeSegment проверяет, что s можно использовать как один
// сегмент пути внутри директории кэша.
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

func (s *Store) taskDir(name, version string) string {
	return filepath.Join(s.dir, name, version)
}

func (s *Store) manifestPath(name, version string) string {
	return filepath.Join(s.taskDir(name, version), "manifest.json")
}
