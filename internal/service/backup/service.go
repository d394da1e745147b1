package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/repository"
)

// TimestampLayout is the ISO-8601 form written into backups.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	filePrefix     = "backup-"
	fileSuffix     = ".json"
	fileTimeLayout = "20060102T150405.000Z"
)

var requiredKeys = []string{"receitas", "despesas", "timestamp"}

// Stored describes a backup file kept by the auto-backup job.
type Stored struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// RestoreResult counts the records re-imported from a backup.
type RestoreResult struct {
	Income   int `json:"receitas"`
	Expenses int `json:"despesas"`
	Members  int `json:"membros"`
}

// Service snapshots and restores an owner's records.
type Service struct {
	store     repository.DocumentStore
	session   auth.Source
	dir       string
	retention int
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewService wires the backup service. Auto-backups go to dir, keeping
// the newest retention files per owner; an empty dir disables them.
func NewService(store repository.DocumentStore, session auth.Source, dir string, retention int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention < 1 {
		retention = 1
	}
	return &Service{
		store:     store,
		session:   session,
		dir:       dir,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Create snapshots the income, expenses and members of the signed-in
// owner.
func (s *Service) Create(ctx context.Context) (*models.Backup, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return nil, apperror.AuthRequired("create backup")
	}

	b := &models.Backup{
		Timestamp: s.now().UTC().Format(TimestampLayout),
		UserID:    user.ID,
	}
	var err error
	if b.Receitas, err = load[models.Income](ctx, s.store, repository.CollectionIncome, user.ID); err != nil {
		return nil, err
	}
	if b.Despesas, err = load[models.Expense](ctx, s.store, repository.CollectionExpenses, user.ID); err != nil {
		return nil, err
	}
	if b.Membros, err = load[models.Member](ctx, s.store, repository.CollectionMembers, user.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// Write emits b as indented JSON, the downloadable form of a backup.
func Write(w io.Writer, b *models.Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// Parse reads a backup and checks its structure: receitas, despesas and
// a parseable timestamp must be present.
func Parse(r io.Reader) (*models.Backup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, apperror.ValidationFailed("", "backup is not a JSON object")
	}
	for _, key := range requiredKeys {
		if _, ok := keys[key]; !ok {
			return nil, apperror.ValidationFailed(key, fmt.Sprintf("backup is missing %q", key))
		}
	}

	var b models.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, apperror.ValidationFailed("", fmt.Sprintf("malformed backup: %v", err))
	}
	if _, err := time.Parse(time.RFC3339, b.Timestamp); err != nil {
		return nil, apperror.ValidationFailed("timestamp", "timestamp is not a valid date")
	}
	return &b, nil
}

// Restore re-imports every record of b under the signed-in owner. The
// store assigns fresh ids. Nothing is written unless every record
// validates.
func (s *Service) Restore(ctx context.Context, b *models.Backup) (RestoreResult, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return RestoreResult{}, apperror.Persistence("restore", "backup", apperror.AuthRequired("restore"))
	}

	now := s.now().UTC()
	income := prepare(b.Receitas, user.ID, now)
	expenses := prepare(b.Despesas, user.ID, now)
	members := prepare(b.Membros, user.ID, now)
	for _, err := range []error{validate(income), validate(expenses), validate(members)} {
		if err != nil {
			return RestoreResult{}, err
		}
	}

	var result RestoreResult
	var err error
	if result.Income, err = insert(ctx, s.store, repository.CollectionIncome, income); err != nil {
		return result, err
	}
	if result.Expenses, err = insert(ctx, s.store, repository.CollectionExpenses, expenses); err != nil {
		return result, err
	}
	if result.Members, err = insert(ctx, s.store, repository.CollectionMembers, members); err != nil {
		return result, err
	}

	s.logger.Info("backup restored",
		zap.String("user_id", user.ID),
		zap.Int("receitas", result.Income),
		zap.Int("despesas", result.Expenses),
		zap.Int("membros", result.Members))
	return result, nil
}

// AutoBackup writes a snapshot to the backup directory and prunes old
// files. It returns the name of the new file.
func (s *Service) AutoBackup(ctx context.Context) (string, error) {
	if s.dir == "" {
		return "", errors.New("backup directory not configured")
	}
	b, err := s.Create(ctx)
	if err != nil {
		return "", err
	}
	dir, err := s.ownerDir(b.UserID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp, _ := time.Parse(TimestampLayout, b.Timestamp)
	name := filePrefix + stamp.UTC().Format(fileTimeLayout) + fileSuffix
	if err := writeFile(filepath.Join(dir, name), b); err != nil {
		return "", err
	}

	if err := s.prune(dir); err != nil {
		s.logger.Warn("backup pruning failed", zap.Error(err))
	}
	s.logger.Info("auto-backup written", zap.String("user_id", b.UserID), zap.String("file", name))
	return name, nil
}

// List returns the stored backups of the signed-in owner, newest first.
func (s *Service) List(ctx context.Context) ([]Stored, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return nil, apperror.AuthRequired("list backups")
	}
	if s.dir == "" {
		return []Stored{}, nil
	}
	dir, err := s.ownerDir(user.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return scan(dir)
}

func (s *Service) ownerDir(ownerID string) (string, error) {
	if ownerID == "" || ownerID != filepath.Base(ownerID) || strings.HasPrefix(ownerID, ".") {
		return "", fmt.Errorf("owner id %q cannot name a directory", ownerID)
	}
	return filepath.Join(s.dir, ownerID), nil
}

func (s *Service) prune(dir string) error {
	stored, err := scan(dir)
	if err != nil {
		return err
	}
	if len(stored) <= s.retention {
		return nil
	}
	for _, old := range stored[s.retention:] {
		if err := os.Remove(filepath.Join(dir, old.Name)); err != nil {
			return fmt.Errorf("remove %s: %w", old.Name, err)
		}
	}
	return nil
}

func scan(dir string) ([]Stored, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Stored{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	stored := make([]Stored, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		created, err := time.Parse(fileTimeLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		stored = append(stored, Stored{Name: name, CreatedAt: created, Size: info.Size()})
	}

	sort.Slice(stored, func(i, j int) bool {
		return stored[i].CreatedAt.After(stored[j].CreatedAt)
	})
	return stored, nil
}

func writeFile(path string, b *models.Backup) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if err := Write(f, b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("store backup file: %w", err)
	}
	return nil
}

func load[T any](ctx context.Context, store repository.DocumentStore, collection, ownerID string) ([]T, error) {
	docs, err := store.Find(ctx, collection, repository.OwnedBy(ownerID), nil)
	if err != nil {
		return nil, apperror.Query(collection, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := bson.Unmarshal(doc, &item); err != nil {
			return nil, apperror.Query(collection, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func prepare[T any, P interface {
	*T
	models.Record
}](items []T, ownerID string, now time.Time) []P {
	out := make([]P, 0, len(items))
	for i := range items {
		item := items[i]
		p := P(&item)
		p.SetID("")
		p.SetOwnerID(ownerID)
		if p.GetCreatedAt().IsZero() {
			p.SetCreatedAt(now)
		}
		if d, ok := any(p).(models.Defaulter); ok {
			d.ApplyDefaults(now)
		}
		out = append(out, p)
	}
	return out
}

func validate[P models.Record](items []P) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func insert[P models.Record](ctx context.Context, store repository.DocumentStore, collection string, items []P) (int, error) {
	for i, item := range items {
		if _, err := store.Insert(ctx, collection, item); err != nil {
			return i, apperror.Persistence("restore", collection, err)
		}
	}
	return len(items), nil
}
