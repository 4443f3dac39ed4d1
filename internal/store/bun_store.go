package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// StrandModel is the bun row shape for the strands table. jsonb columns
// carry the per-kind content and resonance/cluster maps; ToDomain
// converts a row back to the domain type.
type StrandModel struct {
	bun.BaseModel `bun:"table:strands,alias:s"`

	ID                  string          `bun:"id,pk"`
	Kind                string          `bun:"kind,notnull"`
	BraidLevel          int             `bun:"braid_level,notnull"`
	CreatedAt           time.Time       `bun:"created_at,notnull"`
	Symbol              string          `bun:"symbol"`
	Timeframe           string          `bun:"timeframe"`
	Regime              string          `bun:"regime"`
	Content             json.RawMessage `bun:"content,type:jsonb"`
	ModuleIntelligence  json.RawMessage `bun:"module_intelligence,type:jsonb"`
	ResonanceScores     json.RawMessage `bun:"resonance_scores,type:jsonb"`
	Tags                []string        `bun:"tags,array"`
	ParentIDs           []string        `bun:"parent_ids,array"`
	ClusterKeys         json.RawMessage `bun:"cluster_keys,type:jsonb"`
	Version             int64           `bun:"version,notnull"`
}

// NewStrandModel converts a domain.Strand into its row form.
func NewStrandModel(s *domain.Strand) (*StrandModel, error) {
	content, err := json.Marshal(s.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	intel, err := json.Marshal(s.ModuleIntelligence)
	if err != nil {
		return nil, fmt.Errorf("marshal module_intelligence: %w", err)
	}
	scores, err := json.Marshal(s.ResonanceScores)
	if err != nil {
		return nil, fmt.Errorf("marshal resonance_scores: %w", err)
	}
	keys, err := json.Marshal(s.ClusterKeys)
	if err != nil {
		return nil, fmt.Errorf("marshal cluster_keys: %w", err)
	}
	return &StrandModel{
		ID:                 s.ID,
		Kind:               string(s.Kind),
		BraidLevel:         s.BraidLevel,
		CreatedAt:          s.CreatedAt,
		Symbol:             s.Symbol,
		Timeframe:          s.Timeframe,
		Regime:             s.Regime,
		Content:            content,
		ModuleIntelligence: intel,
		ResonanceScores:    scores,
		Tags:               s.Tags,
		ParentIDs:          s.ParentIDs,
		ClusterKeys:        keys,
		Version:            s.Version,
	}, nil
}

// ToDomain converts a row back into the domain type.
func (m *StrandModel) ToDomain() (*domain.Strand, error) {
	var content map[string]any
	if len(m.Content) > 0 {
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
	}
	var intel map[string]any
	if len(m.ModuleIntelligence) > 0 {
		if err := json.Unmarshal(m.ModuleIntelligence, &intel); err != nil {
			return nil, fmt.Errorf("unmarshal module_intelligence: %w", err)
		}
	}
	var scores domain.ResonanceScores
	if len(m.ResonanceScores) > 0 {
		if err := json.Unmarshal(m.ResonanceScores, &scores); err != nil {
			return nil, fmt.Errorf("unmarshal resonance_scores: %w", err)
		}
	}
	var keys map[string]string
	if len(m.ClusterKeys) > 0 {
		if err := json.Unmarshal(m.ClusterKeys, &keys); err != nil {
			return nil, fmt.Errorf("unmarshal cluster_keys: %w", err)
		}
	}
	return &domain.Strand{
		ID:                 m.ID,
		Kind:               domain.StrandKind(m.Kind),
		BraidLevel:         m.BraidLevel,
		CreatedAt:          m.CreatedAt,
		Symbol:             m.Symbol,
		Timeframe:          m.Timeframe,
		Regime:             m.Regime,
		Content:            content,
		ModuleIntelligence: intel,
		ResonanceScores:    scores,
		Tags:               m.Tags,
		ParentIDs:          m.ParentIDs,
		ClusterKeys:        keys,
		Version:            m.Version,
	}, nil
}

// OutboxModel is the co-committed queue row (spec §4.2's outbox
// pattern): one row per appended strand, claimed and advanced by the
// Dispatcher (C2). It lives in the same table space so it can be
// inserted in the same transaction as the strand it names.
type OutboxModel struct {
	bun.BaseModel `bun:"table:outbox_items,alias:o"`

	ID          string    `bun:"id,pk"`
	StrandID    string    `bun:"strand_id,notnull"`
	Kind        string    `bun:"kind,notnull"`
	Status      string    `bun:"status,notnull"`
	Attempts    int       `bun:"attempts,notnull"`
	AvailableAt time.Time `bun:"available_at,notnull"`
	ParkReason  string    `bun:"park_reason"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

// BunStore is the Postgres-backed StrandStore (C1): jsonb model
// columns, RunInTx for multi-row commits, ON CONFLICT DO NOTHING on the
// co-committed outbox row.
type BunStore struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewBunStore opens a pgdriver/bun connection from a DSN and wraps it.
func NewBunStore(dsn string, log zerolog.Logger) (*BunStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db, log: log}, nil
}

// InitSchema creates the strands and outbox_items tables if absent.
// There is no migration framework here: schema changes are additive
// CREATE TABLE IF NOT EXISTS statements, not versioned migrations.
func (s *BunStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*StrandModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create strands table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*OutboxModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create outbox_items table: %w", err)
	}
	return nil
}

func (s *BunStore) Append(ctx context.Context, st *domain.Strand) (string, error) {
	if err := st.Validate(); err != nil {
		return "", coreerr.NewInput(err.Error(), nil)
	}

	model, err := NewStrandModel(st)
	if err != nil {
		return "", coreerr.NewInput(err.Error(), err)
	}
	model.Version = 1

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if st.BraidLevel >= 2 {
			n, err := tx.NewSelect().Model((*StrandModel)(nil)).
				Where("id IN (?)", bun.In(st.ParentIDs)).Count(ctx)
			if err != nil {
				return fmt.Errorf("verify parents: %w", err)
			}
			if n != len(st.ParentIDs) {
				return coreerr.NewInput("one or more parent strands not found", nil)
			}
		}

		exists, err := tx.NewSelect().Model((*StrandModel)(nil)).Where("id = ?", st.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check duplicate id: %w", err)
		}
		if exists {
			return coreerr.NewInput("duplicate strand id: "+st.ID, coreerr.NewConflict(st.ID))
		}

		if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
			return fmt.Errorf("insert strand: %w", err)
		}

		outboxRow := &OutboxModel{
			ID:          st.ID,
			StrandID:    st.ID,
			Kind:        string(st.Kind),
			Status:      "pending",
			Attempts:    0,
			AvailableAt: time.Now().UTC(),
			CreatedAt:   time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(outboxRow).
			On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert outbox item: %w", err)
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*coreerr.InputError); ok {
			return "", err
		}
		return "", coreerr.NewTransient("append strand", err)
	}
	return st.ID, nil
}

func (s *BunStore) Get(ctx context.Context, id string) (*domain.Strand, error) {
	model := new(StrandModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, coreerr.NewNotFound(id)
		}
		return nil, coreerr.NewTransient("get strand", err)
	}
	return model.ToDomain()
}

func (s *BunStore) Scan(ctx context.Context, q ScanQuery) (Cursor, error) {
	query := s.db.NewSelect().Model((*StrandModel)(nil)).Where("kind = ?", string(q.Kind))
	if !q.Since.IsZero() {
		query = query.Where("created_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		query = query.Where("created_at <= ?", q.Until)
	}
	if q.MinLevel > 0 {
		query = query.Where("braid_level >= ?", q.MinLevel)
	}
	if q.MaxLevel > 0 {
		query = query.Where("braid_level <= ?", q.MaxLevel)
	}
	if q.MinScore > 0 {
		query = query.Where("(resonance_scores->>'selection_score')::float8 >= ?", q.MinScore)
	}
	query = query.Order("created_at ASC", "id ASC")

	var models []StrandModel
	if err := query.Scan(ctx, &models); err != nil {
		return nil, coreerr.NewTransient("scan strands", err)
	}
	return modelsToCursor(models)
}

func (s *BunStore) ByClusterKey(ctx context.Context, kind domain.StrandKind, view domain.View, bucket string) (Cursor, error) {
	var models []StrandModel
	err := s.db.NewSelect().Model(&models).
		Where("kind = ?", string(kind)).
		Where("cluster_keys->>? = ?", string(view), bucket).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, coreerr.NewTransient("scan by cluster key", err)
	}
	return modelsToCursor(models)
}

func (s *BunStore) UpdateResonanceScores(ctx context.Context, id string, version int64, scores domain.ResonanceScores) error {
	encoded, err := json.Marshal(scores)
	if err != nil {
		return coreerr.NewInput(err.Error(), err)
	}
	res, err := s.db.NewUpdate().Model((*StrandModel)(nil)).
		Set("resonance_scores = ?", encoded).
		Set("version = version + 1").
		Where("id = ?", id).
		Where("version = ?", version).
		Exec(ctx)
	if err != nil {
		return coreerr.NewTransient("update resonance scores", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return coreerr.NewTransient("rows affected", err)
	}
	if affected == 0 {
		exists, err := s.db.NewSelect().Model((*StrandModel)(nil)).Where("id = ?", id).Exists(ctx)
		if err != nil {
			return coreerr.NewTransient("check existence", err)
		}
		if !exists {
			return coreerr.NewNotFound(id)
		}
		return coreerr.NewConflict(id)
	}
	return nil
}

// SetClusterKeys merges view->bucket labels into a strand's cluster_keys
// jsonb column without touching its version.
func (s *BunStore) SetClusterKeys(ctx context.Context, id string, keys map[string]string) error {
	encoded, err := json.Marshal(keys)
	if err != nil {
		return coreerr.NewInput(err.Error(), err)
	}
	_, err = s.db.NewUpdate().Model((*StrandModel)(nil)).
		Set("cluster_keys = COALESCE(cluster_keys, '{}'::jsonb) || ?::jsonb", string(encoded)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return coreerr.NewTransient("set cluster keys", err)
	}
	return nil
}

func (s *BunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func modelsToCursor(models []StrandModel) (Cursor, error) {
	out := make([]*domain.Strand, 0, len(models))
	for i := range models {
		d, err := models[i].ToDomain()
		if err != nil {
			return nil, coreerr.NewTransient("decode strand row", err)
		}
		out = append(out, d)
	}
	return newSliceCursor(out), nil
}
