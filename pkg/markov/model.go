package markov

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// ModelInfo holds the catalogue metadata of a stored model.
type ModelInfo struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	Order       int    `json:"order"`
	Keys        int    `json:"keys"`
	Transitions int    `json:"transitions"`
	Size        int    `json:"size_bytes"` // Size of the compressed model blob
}

// SetupSchema initializes the model catalogue table in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    key_count INTEGER NOT NULL,
    transition_count INTEGER NOT NULL,
    model_blob BLOB NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store is a SQLite-backed catalogue of named models. Each model is kept as
// the same compressed blob that Save writes to files.
type Store struct {
	db               *sql.DB
	stmtListModels   *sql.Stmt
	stmtGetModelInfo *sql.Stmt
	stmtGetBlob      *sql.Stmt
	stmtUpsertModel  *sql.Stmt
	stmtRemoveModel  *sql.Stmt
	logger           *slog.Logger
}

// NewStore creates a Store on a database prepared with SetupSchema. It
// pre-compiles all SQL statements, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtListModels, `SELECT model_id, model_name, model_order, key_count, transition_count, length(model_blob) FROM markov_models ORDER BY model_name;`},
		{&s.stmtGetModelInfo, `SELECT model_id, model_name, model_order, key_count, transition_count, length(model_blob) FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetBlob, `SELECT model_blob FROM markov_models WHERE model_name = ?;`},
		{&s.stmtUpsertModel, `INSERT INTO markov_models (model_name, model_order, key_count, transition_count, model_blob) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(model_name) DO UPDATE SET model_order = excluded.model_order, key_count = excluded.key_count, transition_count = excluded.transition_count, model_blob = excluded.model_blob;`},
		{&s.stmtRemoveModel, `DELETE FROM markov_models WHERE model_name = ?;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, err
		}
		*st.dst = stmt
	}
	return s, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtListModels, s.stmtGetModelInfo, s.stmtGetBlob, s.stmtUpsertModel, s.stmtRemoveModel} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ListModels returns the metadata of every stored model, sorted by name.
func (s *Store) ListModels(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtListModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make([]ModelInfo, 0)
	for rows.Next() {
		var m ModelInfo
		if err = rows.Scan(&m.Id, &m.Name, &m.Order, &m.Keys, &m.Transitions, &m.Size); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model. It returns
// sql.ErrNoRows if no model has that name.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	var m ModelInfo
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&m.Id, &m.Name, &m.Order, &m.Keys, &m.Transitions, &m.Size)
	if err != nil {
		return ModelInfo{}, err
	}
	return m, nil
}

// SaveModel stores index under name, replacing any model with the same name.
func (s *Store) SaveModel(ctx context.Context, name string, index *Index) error {
	var buf bytes.Buffer
	if err := Save(&buf, index); err != nil {
		return err
	}
	_, err := s.stmtUpsertModel.ExecContext(ctx, name, index.Order(), index.Len(), index.Transitions(), buf.Bytes())
	if err != nil {
		return fmt.Errorf("could not store model '%s': %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model stored",
		slog.String("model_name", name),
		slog.Int("keys", index.Len()),
		slog.Int("size_bytes", buf.Len()),
	)
	return nil
}

// LoadModel decodes the model stored under name. It returns sql.ErrNoRows if
// no model has that name, and a *PersistenceError if the blob is corrupt.
func (s *Store) LoadModel(ctx context.Context, name string) (*Index, error) {
	var blob []byte
	if err := s.stmtGetBlob.QueryRowContext(ctx, name).Scan(&blob); err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(blob))
}

// RemoveModel deletes the model stored under name. It returns sql.ErrNoRows
// if no model has that name.
func (s *Store) RemoveModel(ctx context.Context, name string) error {
	res, err := s.stmtRemoveModel.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to remove model '%s': %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", name),
	)
	return nil
}
