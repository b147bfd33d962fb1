// Package snapshot сохраняет заказы в каталог восстановления и поднимает
// их при старте: по одному JSON-файлу на живой заказ.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

const (
	defaultDeleteRetryDelay = 10 * time.Millisecond
	defaultWriteRetryDelay  = 20 * time.Millisecond
)

// Options задаёт параметры Store.
type Options struct {
	Logger           *log.Entry
	Metrics          *metrics.TrackerMetrics
	DeleteRetryDelay time.Duration
	WriteRetryDelay  time.Duration
	Remove           func(path string) error
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.TrackerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithRetryDelays задаёт паузы перед повторным удалением и повторной записью.
func WithRetryDelays(deleteDelay, writeDelay time.Duration) Option {
	return func(opts *Options) {
		opts.DeleteRetryDelay = deleteDelay
		opts.WriteRetryDelay = writeDelay
	}
}

// WithRemoveFunc подменяет удаление файлов.
func WithRemoveFunc(remove func(path string) error) Option {
	return func(opts *Options) {
		opts.Remove = remove
	}
}

// LoadFailure описывает снапшот, который не удалось прочитать. Файл остаётся на месте.
type LoadFailure struct {
	File string
	Err  error
}

// LoadResult - итог загрузки каталога снапшотов.
type LoadResult struct {
	// Orders отсортированы по ID.
	Orders   []domain.Order
	// MaxID учитывает и ID из имён непрочитанных Saved_Order<ID>.json.
	MaxID    int
	Failures []LoadFailure
}

// Store владеет каталогом снапшотов. LoadAll, WriteOne и WriteAll
// сериализуются на одном мьютексе.
type Store struct {
	dir              string
	logger           *log.Entry
	metrics          *metrics.TrackerMetrics
	deleteRetryDelay time.Duration
	writeRetryDelay  time.Duration
	remove           func(path string) error

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewStore создаёт каталог снапшотов, если его нет.
func NewStore(dir string, options ...Option) (*Store, error) {
	opts := Options{
		DeleteRetryDelay: defaultDeleteRetryDelay,
		WriteRetryDelay:  defaultWriteRetryDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "snapshot-store")
	}
	if opts.Remove == nil {
		opts.Remove = os.Remove
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	return &Store{
		dir:              dir,
		logger:           logger.WithField("dir", dir),
		metrics:          opts.Metrics,
		deleteRetryDelay: opts.DeleteRetryDelay,
		writeRetryDelay:  opts.WriteRetryDelay,
		remove:           opts.Remove,
		pending:          make(map[string]struct{}),
	}, nil
}

// Dir возвращает каталог снапшотов.
func (s *Store) Dir() string {
	return s.dir
}

// LoadAll читает все *.json в каталоге. Ошибка чтения отдельного файла
// попадает в Failures и не прерывает загрузку. Успешно прочитанные файлы
// удаляются; если удалить не вышло и после повтора, удаление откладывается
// до FlushPendingDeletes.
func (s *Store) LoadAll(ctx context.Context) (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	defer func() { s.metrics.RecordSnapshotLoad(time.Since(started)) }()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return LoadResult{}, fmt.Errorf("list snapshot directory: %w", err)
	}

	var (
		result LoadResult
		loaded []string
		seen   = make(map[int]string)
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return LoadResult{}, err
		}
		name := entry.Name()
		if !entry.Type().IsRegular() || !isSnapshotCandidate(name) {
			continue
		}

		order, err := s.readOne(name)
		if err == nil {
			if other, dup := seen[order.ID]; dup {
				err = fmt.Errorf("%w: %d already loaded from %s", domain.ErrDuplicateOrderID, order.ID, other)
			}
		}
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Warn("failed to load snapshot")
			result.Failures = append(result.Failures, LoadFailure{File: name, Err: err})
			// Файл остаётся на диске: его ID не должен достаться новому заказу.
			if id, ok := IDFromFileName(name); ok && id > result.MaxID {
				result.MaxID = id
			}
			continue
		}

		seen[order.ID] = name
		result.Orders = append(result.Orders, order)
		loaded = append(loaded, name)
		if order.ID > result.MaxID {
			result.MaxID = order.ID
		}
	}

	sort.Slice(result.Orders, func(i, j int) bool { return result.Orders[i].ID < result.Orders[j].ID })

	for _, name := range loaded {
		s.deleteWithRetry(ctx, filepath.Join(s.dir, name))
	}

	s.logger.WithFields(log.Fields{
		"loaded":  len(result.Orders),
		"failed":  len(result.Failures),
		"max_id":  result.MaxID,
		"pending": len(s.pending),
	}).Info("snapshots loaded")
	return result, nil
}

func (s *Store) readOne(name string) (domain.Order, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return domain.Order{}, err
	}
	return decode(data)
}

func (s *Store) deleteWithRetry(ctx context.Context, path string) {
	err := s.remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}

	timer := time.NewTimer(s.deleteRetryDelay)
	select {
	case <-ctx.Done():
	case <-timer.C:
		err = s.remove(path)
	}
	timer.Stop()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}

	s.pending[path] = struct{}{}
	s.logger.WithError(err).WithField("file", filepath.Base(path)).Warn("snapshot delete deferred until exit")
}

// PendingDeletes возвращает файлы, ожидающие удаления.
func (s *Store) PendingDeletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.pending))
	for path := range s.pending {
		out = append(out, filepath.Base(path))
	}
	sort.Strings(out)
	return out
}

// FlushPendingDeletes удаляет отложенные файлы. Вызывается при выходе.
func (s *Store) FlushPendingDeletes() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for path := range s.pending {
		if err := s.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete %s: %w", filepath.Base(path), err))
			continue
		}
		delete(s.pending, path)
	}
	return errors.Join(errs...)
}

// WriteOne пишет снапшот заказа, заменяя предыдущий. При ошибке делает
// одну повторную попытку.
func (s *Store) WriteOne(order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(order)
}

// WriteAll сохраняет все заказы; ошибки по отдельным заказам объединяются.
func (s *Store) WriteAll(orders []domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, order := range orders {
		if err := s.writeLocked(order); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		s.logger.WithField("orders", len(orders)).Info("snapshots flushed")
	}
	return errors.Join(errs...)
}

func (s *Store) writeLocked(order domain.Order) error {
	if order.ID <= 0 {
		return fmt.Errorf("%w: order id %d is not assigned", domain.ErrPersistenceWrite, order.ID)
	}
	data, err := encode(order)
	if err != nil {
		return fmt.Errorf("%w: order %d: %w", domain.ErrPersistenceWrite, order.ID, err)
	}

	name := FileName(order.ID)
	err = s.writeAtomic(name, data)
	if err != nil {
		s.metrics.RecordSnapshotWrite("retry")
		time.Sleep(s.writeRetryDelay)
		err = s.writeAtomic(name, data)
	}
	if err != nil {
		s.metrics.RecordSnapshotWrite("failed")
		return fmt.Errorf("%w: order %d: %w", domain.ErrPersistenceWrite, order.ID, err)
	}

	// Живой снапшот не должен удалиться отложенной очисткой.
	delete(s.pending, filepath.Join(s.dir, name))
	s.metrics.RecordSnapshotWrite("ok")
	return nil
}

// writeAtomic пишет во временный файл и переименовывает его поверх целевого.
func (s *Store) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Remove удаляет снапшот заказа.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, FileName(id))
	if err := s.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot %d: %w", id, err)
	}
	delete(s.pending, path)
	return nil
}

// RemoveAll удаляет все снапшоты Saved_Order*.json.
func (s *Store) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list snapshot directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, FilePrefix) || !isSnapshotCandidate(name) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if err := s.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		delete(s.pending, path)
	}
	return errors.Join(errs...)
}

func isSnapshotCandidate(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".json")
}
