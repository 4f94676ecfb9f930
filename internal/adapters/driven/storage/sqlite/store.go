package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// Fetcher opens a CRM-held binary for reading.
type Fetcher func(ctx context.Context, remotePath string) (io.ReadCloser, error)

// Store is a unified SQLite-based storage that provides access to
// all Content-side store interfaces through wrapper types.
type Store struct {
	db       *sql.DB
	path     string
	filesDir string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.fieldsync/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fieldsync", "data")
	}

	filesDir := filepath.Join(dataDir, "files")
	if err := os.MkdirAll(filesDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fieldsync.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:       db,
		path:     dbPath,
		filesDir: filesDir,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// FilesDir returns the directory imported binaries are written to.
func (s *Store) FilesDir() string {
	return s.filesDir
}

// FieldStore returns a FieldStore interface backed by this store.
func (s *Store) FieldStore() driven.FieldStore {
	return &fieldStore{store: s}
}

// FieldCatalog returns a FieldCatalog interface backed by this store.
func (s *Store) FieldCatalog() driven.FieldCatalog {
	return &fieldCatalog{store: s}
}

// EntityResolver returns an EntityResolver interface backed by this store.
func (s *Store) EntityResolver() driven.EntityResolver {
	return &entityResolver{store: s}
}

// MetadataStore returns a MetadataStore interface backed by this store.
func (s *Store) MetadataStore() driven.MetadataStore {
	return &metadataStore{store: s}
}

// FileStore returns a FileStore interface backed by this store.
// Imports read the CRM's copy through fetch.
func (s *Store) FileStore(fetch Fetcher) driven.FileStore {
	return &fileStore{store: s, fetch: fetch}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.apply(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) apply(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(script); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Map links a parent Entity to a Content record, replacing any earlier
// mapping of either side.
func (s *Store) Map(ctx context.Context, parentType string, entityID, recordID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entity_mappings
		WHERE parent_type = ? AND (entity_id = ? OR record_id = ?)
	`, parentType, entityID, recordID); err != nil {
		return fmt.Errorf("clearing mapping: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_mappings (parent_type, entity_id, record_id) VALUES (?, ?, ?)
	`, parentType, entityID, recordID); err != nil {
		return fmt.Errorf("saving mapping: %w", err)
	}
	return tx.Commit()
}

// AddField attaches a Record-Set field to a Content record.
func (s *Store) AddField(ctx context.Context, recordID int64, def domain.FieldDef) error {
	if !def.Kind.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, def.Kind)
	}
	filter := def.Filter
	if filter == nil {
		filter = domain.Filter{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("marshalling filter: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_fields (record_id, selector, kind, filter, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id, selector) DO UPDATE SET
			kind = excluded.kind,
			filter = excluded.filter,
			label = excluded.label
	`, recordID, def.Selector, string(def.Kind), string(filterJSON), def.Label)
	if err != nil {
		return fmt.Errorf("saving field: %w", err)
	}
	return nil
}

// AddFile registers a local file and returns its ID.
func (s *Store) AddFile(ctx context.Context, localPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO files (path) VALUES (?)", localPath)
	if err != nil {
		return 0, fmt.Errorf("saving file: %w", err)
	}
	return res.LastInsertId()
}

// ==================== Field Store ====================

// fieldStore implements driven.FieldStore.
type fieldStore struct {
	store *Store
}

var _ driven.FieldStore = (*fieldStore)(nil)

// GetFieldValue returns the field's rows, or an empty value if unset.
func (s *fieldStore) GetFieldValue(ctx context.Context, recordID int64, selector string) (domain.FieldValue, error) {
	var valueJSON string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT value FROM field_values WHERE record_id = ? AND selector = ?
	`, recordID, selector).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FieldValue{}, nil
		}
		return nil, fmt.Errorf("scanning field value: %w", err)
	}

	value := domain.FieldValue{}
	if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
		return nil, fmt.Errorf("unmarshalling field value: %w", err)
	}
	return value, nil
}

// SetFieldValue replaces the field's rows.
func (s *fieldStore) SetFieldValue(ctx context.Context, recordID int64, selector string, value domain.FieldValue) error {
	if value == nil {
		value = domain.FieldValue{}
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling field value: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO field_values (record_id, selector, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(record_id, selector) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, recordID, selector, string(valueJSON))
	if err != nil {
		return fmt.Errorf("saving field value: %w", err)
	}
	return nil
}

// LocateRemoteID returns the fields holding a row linked to remoteID.
func (s *fieldStore) LocateRemoteID(ctx context.Context, remoteID int64) ([]domain.FieldRef, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT fv.record_id, fv.selector
		FROM field_values fv, json_each(fv.value) je
		WHERE CAST(json_extract(je.value, '$.remote_id') AS INTEGER) = ?
		ORDER BY fv.record_id, fv.selector
	`, remoteID)
	if err != nil {
		return nil, fmt.Errorf("locating remote_id %d: %w", remoteID, err)
	}
	defer rows.Close()

	var refs []domain.FieldRef
	for rows.Next() {
		var ref domain.FieldRef
		if err := rows.Scan(&ref.RecordID, &ref.Selector); err != nil {
			return nil, fmt.Errorf("scanning field ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ==================== Field Catalog ====================

// fieldCatalog implements driven.FieldCatalog.
type fieldCatalog struct {
	store *Store
}

var _ driven.FieldCatalog = (*fieldCatalog)(nil)

// Fields returns the record's fields mirroring kind, in selector order.
func (c *fieldCatalog) Fields(ctx context.Context, recordID int64, kind domain.EntityKind) ([]domain.FieldDef, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT selector, kind, filter, label FROM content_fields
		WHERE record_id = ? AND kind = ?
		ORDER BY selector
	`, recordID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying fields: %w", err)
	}
	defer rows.Close()

	var defs []domain.FieldDef
	for rows.Next() {
		def, err := scanFieldDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// Field returns one field by selector.
func (c *fieldCatalog) Field(ctx context.Context, recordID int64, selector string) (*domain.FieldDef, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT selector, kind, filter, label FROM content_fields
		WHERE record_id = ? AND selector = ?
	`, recordID, selector)

	def, err := scanFieldDef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s on record %d: %w", selector, recordID, domain.ErrFieldNotFound)
	}
	return def, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFieldDef(row scanner) (*domain.FieldDef, error) {
	var def domain.FieldDef
	var kind, filterJSON string
	if err := row.Scan(&def.Selector, &kind, &filterJSON, &def.Label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning field: %w", err)
	}
	def.Kind = domain.EntityKind(kind)

	var filter domain.Filter
	if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
		return nil, fmt.Errorf("unmarshalling filter: %w", err)
	}
	if len(filter) > 0 {
		def.Filter = filter
	}
	return &def, nil
}

// ==================== Entity Resolver ====================

// entityResolver implements driven.EntityResolver.
type entityResolver struct {
	store *Store
}

var _ driven.EntityResolver = (*entityResolver)(nil)

// ResolveRecord returns the Content record mapped to a parent Entity.
func (r *entityResolver) ResolveRecord(
	ctx context.Context,
	parentType string,
	entityID int64,
	_ domain.Operation,
) (int64, bool, error) {
	return r.lookup(ctx, `
		SELECT record_id FROM entity_mappings WHERE parent_type = ? AND entity_id = ?
	`, parentType, entityID)
}

// ResolveEntity returns the parent Entity mapped to a Content record.
func (r *entityResolver) ResolveEntity(ctx context.Context, recordID int64, parentType string) (int64, bool, error) {
	return r.lookup(ctx, `
		SELECT entity_id FROM entity_mappings WHERE parent_type = ? AND record_id = ?
	`, parentType, recordID)
}

func (r *entityResolver) lookup(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("scanning mapping: %w", err)
	}
	return id, true, nil
}

// ==================== Metadata Store ====================

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

// SetFileMeta stores or replaces the cross-reference for a file.
func (m *metadataStore) SetFileMeta(ctx context.Context, fileID int64, meta domain.FileMeta) error {
	_, err := m.store.db.ExecContext(ctx, `
		INSERT INTO file_metadata (file_id, local_path, remote_path, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(file_id) DO UPDATE SET
			local_path = excluded.local_path,
			remote_path = excluded.remote_path,
			updated_at = excluded.updated_at
	`, fileID, meta.LocalPath, meta.RemotePath)
	if err != nil {
		return fmt.Errorf("saving file metadata: %w", err)
	}
	return nil
}

// GetFileMeta returns the cross-reference for a file.
func (m *metadataStore) GetFileMeta(ctx context.Context, fileID int64) (*domain.FileMeta, error) {
	var meta domain.FileMeta
	err := m.store.db.QueryRowContext(ctx, `
		SELECT local_path, remote_path FROM file_metadata WHERE file_id = ?
	`, fileID).Scan(&meta.LocalPath, &meta.RemotePath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning file metadata: %w", err)
	}
	return &meta, nil
}

// DeleteFileMeta removes the cross-reference for a file.
func (m *metadataStore) DeleteFileMeta(ctx context.Context, fileID int64) error {
	if _, err := m.store.db.ExecContext(ctx, "DELETE FROM file_metadata WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("deleting file metadata: %w", err)
	}
	return nil
}

// ==================== File Store ====================

// fileStore implements driven.FileStore.
type fileStore struct {
	store *Store
	fetch Fetcher
}

var _ driven.FileStore = (*fileStore)(nil)

// Path returns the file's current path.
func (f *fileStore) Path(ctx context.Context, fileID int64) (string, error) {
	var p string
	if err := f.store.db.QueryRowContext(ctx, "SELECT path FROM files WHERE id = ?", fileID).Scan(&p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("file %d: %w", fileID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("scanning file: %w", err)
	}
	return p, nil
}

// Import copies the CRM's binary into the files directory and registers it.
func (f *fileStore) Import(ctx context.Context, remotePath string) (int64, string, error) {
	if remotePath == "" {
		return 0, "", fmt.Errorf("%w: empty remote path", domain.ErrInvalidInput)
	}
	if f.fetch == nil {
		return 0, "", fmt.Errorf("%w: no fetcher for %s", domain.ErrNotInitialized, remotePath)
	}

	src, err := f.fetch(ctx, remotePath)
	if err != nil {
		return 0, "", fmt.Errorf("fetching %s: %w", remotePath, err)
	}
	defer src.Close()

	tx, err := f.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO files (path) VALUES ('')")
	if err != nil {
		return 0, "", fmt.Errorf("saving file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("reading file id: %w", err)
	}

	local := filepath.Join(f.store.filesDir, fmt.Sprintf("%d-%s", id, baseName(remotePath)))
	if err := writeFile(local, src); err != nil {
		return 0, "", err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE files SET path = ? WHERE id = ?", local, id); err != nil {
		os.Remove(local)
		return 0, "", fmt.Errorf("saving file path: %w", err)
	}
	if err := tx.Commit(); err != nil {
		os.Remove(local)
		return 0, "", fmt.Errorf("committing file: %w", err)
	}
	return id, local, nil
}

func writeFile(name string, src io.Reader) error {
	dst, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(name)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return dst.Close()
}

// baseName is the last element of a CRM path, which always uses slashes.
func baseName(remotePath string) string {
	base := path.Base(remotePath)
	if base == "." || base == "/" || base == ".." {
		return "file"
	}
	return base
}
