package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tacint/sparrow/internal/pkg/persistence"
)

type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DB provides operations with postgresql
type DB struct {
	pool pgxPool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertBatch inserts batch request into DB
func (db *DB) InsertBatch(ctx context.Context, req *persistence.BatchData) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO batches(id, email, file_names, params, request_id, created)
	VALUES($1, $2, $3, $4, $5, $6)`, req.ID, req.Email, req.FileNames,
		req.Params,
		req.RequestID,
		req.Created,
	)
	if err != nil {
		return fmt.Errorf("can't insert batch: %w", err)
	}
	return nil
}

// LoadBatch loads batch request from DB
func (db *DB) LoadBatch(ctx context.Context, id string) (*persistence.BatchData, error) {
	var res persistence.BatchData
	err := db.pool.QueryRow(ctx, `SELECT id, email, file_names, params, request_id, created FROM batches
		WHERE id = $1`, id).Scan(&res.ID, &res.Email, &res.FileNames, &res.Params, &res.RequestID, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("can't load batch: %w", err)
	}
	return &res, nil
}

// InsertStatus inserts file workflow status into DB.
// Repeated insert for the same ID is a no-op so batch fan-out stays idempotent
func (db *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO status(id, batch_id, file_name, status, created)
	VALUES($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		item.ID, item.BatchID, item.FileName, item.Status, item.Created)
	if err != nil {
		return fmt.Errorf("can't insert status: %w", err)
	}
	return nil
}

// LoadStatus loads file workflow status from DB
func (db *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	var res persistence.Status
	err := db.pool.QueryRow(ctx, `SELECT id, batch_id, file_name, status, error, error_code, version FROM status
		WHERE id = $1`, id).Scan(&res.ID, &res.BatchID, &res.FileName, &res.Status, &res.Error,
		&res.ErrorCode, &res.Version)
	if err != nil {
		return nil, fmt.Errorf("can't load status: %w", err)
	}
	return &res, nil
}

// LoadBatchStatuses loads statuses of all files in a batch
func (db *DB) LoadBatchStatuses(ctx context.Context, batchID string) ([]*persistence.Status, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, batch_id, file_name, status, error, error_code, version FROM status
		WHERE batch_id = $1 ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("can't load statuses: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Status{}
	for rows.Next() {
		var item persistence.Status
		if err := rows.Scan(&item.ID, &item.BatchID, &item.FileName, &item.Status, &item.Error,
			&item.ErrorCode, &item.Version); err != nil {
			return nil, fmt.Errorf("can't scan status: %w", err)
		}
		res = append(res, &item)
	}
	return res, rows.Err()
}

// UpdateStatus updates status in DB
func (db *DB) UpdateStatus(ctx context.Context, item *persistence.Status) error {
	rows, err := db.pool.Exec(ctx, `UPDATE status SET
	status = $3,
	error = $4,
	error_code = $5,
	updated = $6,
	version = $2 + 1
	WHERE id = $1 and version = $2`, item.ID, item.Version, item.Status,
		item.Error, item.ErrorCode, time.Now())
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update status, no records found")
	}
	return nil
}

// SaveStepOutput stores the output of one completed pipeline step
func (db *DB) SaveStepOutput(ctx context.Context, id, stepName string, output []byte) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO pipeline_steps(id, step, output, created)
	VALUES($1, $2, $3, $4) ON CONFLICT (id, step) DO UPDATE SET output = $3`,
		id, stepName, output, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert step output: %w", err)
	}
	return nil
}

// LoadStepOutputs loads outputs of completed steps for a file workflow
func (db *DB) LoadStepOutputs(ctx context.Context, id string) (map[string][]byte, error) {
	rows, err := db.pool.Query(ctx, `SELECT step, output FROM pipeline_steps WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("can't load step outputs: %w", err)
	}
	defer rows.Close()
	res := map[string][]byte{}
	for rows.Next() {
		var stepName string
		var output []byte
		if err := rows.Scan(&stepName, &output); err != nil {
			return nil, fmt.Errorf("can't scan step output: %w", err)
		}
		res[stepName] = output
	}
	return res, rows.Err()
}

type analysisTx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// InsertAnalysis writes one conversation analysis record in an explicit
// transaction. On any failure the transaction is rolled back before the
// error propagates - a partial row is never visible
func (db *DB) InsertAnalysis(ctx context.Context, item *persistence.Analysis) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("can't begin tx: %w", err)
	}
	return insertAnalysisIn(ctx, tx, item)
}

func insertAnalysisIn(ctx context.Context, tx analysisTx, item *persistence.Analysis) error {
	defer func() { _ = tx.Rollback(ctx) }()

	criticalEntities, err := json.Marshal(item.CriticalEntities)
	if err != nil {
		return fmt.Errorf("can't marshal critical_entities: %w", err)
	}
	locations, err := json.Marshal(item.LocationsMentioned)
	if err != nil {
		return fmt.Errorf("can't marshal locations_mentioned: %w", err)
	}
	actions, err := json.Marshal(item.RecommendedActions)
	if err != nil {
		return fmt.Errorf("can't marshal recommended_actions: %w", err)
	}
	speakers, err := json.Marshal(item.Speakers)
	if err != nil {
		return fmt.Errorf("can't marshal speakers: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO conversation_analysis(file_id, priority_level, risk_assessment,
	key_insights, critical_entities, locations_mentioned, sentiment_summary, source_reliability,
	information_credibility, recommended_actions, entity_relationships, speakers,
	conversation_duration, analyzed_at, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		item.FileID, item.PriorityLevel, item.RiskAssessment, item.KeyInsights,
		criticalEntities, locations, item.SentimentSummary, item.SourceReliability,
		item.InformationCredibility, actions, item.EntityRelationships, speakers,
		item.ConversationDuration, item.AnalyzedAt, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert analysis: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// ListAnalyses loads stored conversation analyses.
// The read path is best effort by design: any failure is logged and an
// empty result is returned instead of an error
func (db *DB) ListAnalyses(ctx context.Context) []*persistence.Analysis {
	res := []*persistence.Analysis{}
	rows, err := db.pool.Query(ctx, `SELECT file_id, priority_level, risk_assessment, key_insights,
	critical_entities, locations_mentioned, sentiment_summary, source_reliability,
	information_credibility, recommended_actions, entity_relationships, speakers,
	conversation_duration, analyzed_at, created FROM conversation_analysis ORDER BY created`)
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("can't load analyses - return empty")
		return res
	}
	defer rows.Close()
	for rows.Next() {
		var item persistence.Analysis
		var criticalEntities, locations, actions, speakers []byte
		if err := rows.Scan(&item.FileID, &item.PriorityLevel, &item.RiskAssessment, &item.KeyInsights,
			&criticalEntities, &locations, &item.SentimentSummary, &item.SourceReliability,
			&item.InformationCredibility, &actions, &item.EntityRelationships, &speakers,
			&item.ConversationDuration, &item.AnalyzedAt, &item.Created); err != nil {
			goapp.Log.Warn().Err(err).Msg("can't scan analysis - return empty")
			return []*persistence.Analysis{}
		}
		if err := unmarshalLists(&item, criticalEntities, locations, actions, speakers); err != nil {
			goapp.Log.Warn().Err(err).Msg("can't decode analysis - return empty")
			return []*persistence.Analysis{}
		}
		res = append(res, &item)
	}
	if err := rows.Err(); err != nil {
		goapp.Log.Warn().Err(err).Msg("can't read analyses - return empty")
		return []*persistence.Analysis{}
	}
	return res
}

func unmarshalLists(item *persistence.Analysis, criticalEntities, locations, actions, speakers []byte) error {
	for _, p := range []struct {
		data []byte
		to   *[]string
	}{
		{criticalEntities, &item.CriticalEntities},
		{locations, &item.LocationsMentioned},
		{actions, &item.RecommendedActions},
		{speakers, &item.Speakers},
	} {
		if err := json.Unmarshal(p.data, p.to); err != nil {
			return err
		}
	}
	return nil
}

// LockEmailTable marks email sending as started
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	rows, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, msg_type, created) VALUES($1, $2, $3)`,
		id, msgType, time.Now())
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't lock email table")
	}
	return nil
}

// UnLockEmailTable releases email lock or marks it as done
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	if value != nil && *value != 0 {
		_, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 and msg_type = $2`,
			id, msgType, *value)
		return err
	}
	_, err := db.pool.Exec(ctx, `DELETE FROM email_lock WHERE id = $1 and msg_type = $2`, id, msgType)
	return err
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
