package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"keyforge/database"
	"keyforge/models"
)

type PostgresTaskRepo struct {
	db *database.DB
}

func NewPostgresTaskRepo(db *database.DB) TaskRepository {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, owner_id, trace_id, source, prompt, image_url, image_urls,
	refine_from, mode, COALESCE(meshy_task_id, ''), status, progress, thumbnail_url,
	model_urls, texture_urls, error_message, created_at, updated_at, started_at, finished_at`

func (r *PostgresTaskRepo) CreateTask(ctx context.Context, task *models.Task) error {
	imageURLs, err := marshalNullable(task.ImageURLs, len(task.ImageURLs) > 0)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO generation_tasks (owner_id, trace_id, source, prompt, image_url, image_urls, refine_from, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		task.OwnerID,
		task.TraceID,
		task.Source,
		task.Prompt,
		task.ImageURL,
		imageURLs,
		task.RefineFrom,
		task.Mode,
		task.Status,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

func (r *PostgresTaskRepo) GetTask(ctx context.Context, id, ownerID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE id = $1 AND owner_id = $2`
	return r.scanTask(r.db.Pool.QueryRow(ctx, query, id, ownerID))
}

func (r *PostgresTaskRepo) GetTaskByMeshyID(ctx context.Context, meshyID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE meshy_task_id = $1`
	return r.scanTask(r.db.Pool.QueryRow(ctx, query, meshyID))
}

// MarkSubmitted records provider acceptance: PENDING -> IN_PROGRESS with the
// provider id and start time in one update. The WHERE clause guards the
// set-once invariant on meshy_task_id.
func (r *PostgresTaskRepo) MarkSubmitted(ctx context.Context, id, meshyID string) error {
	query := `
		UPDATE generation_tasks
		SET status = $2, meshy_task_id = $3, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4 AND meshy_task_id IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, id, models.StatusInProgress, meshyID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadySubmitted
	}

	return nil
}

func (r *PostgresTaskRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE generation_tasks
		SET status = $2, error_message = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`

	result, err := r.db.Pool.Exec(ctx, query, id, models.StatusFailed, errMsg,
		models.StatusPending, models.StatusInProgress)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// SaveMerge persists the reconciled fields of a task. The guard lets writes
// through while the row is non-terminal, or when the merged status matches
// the stored one (mirror retries on an already-terminal task), so a racing
// reconciler can never drag a terminal row backwards.
func (r *PostgresTaskRepo) SaveMerge(ctx context.Context, task *models.Task) error {
	modelURLs, err := marshalNullable(task.ModelURLs, !task.ModelURLs.Empty())
	if err != nil {
		return err
	}
	textureURLs, err := marshalNullable(task.TextureURLs, len(task.TextureURLs) > 0)
	if err != nil {
		return err
	}

	query := `
		UPDATE generation_tasks
		SET status = $2, progress = $3, thumbnail_url = $4, model_urls = $5,
			texture_urls = $6, error_message = $7, updated_at = NOW(),
			finished_at = CASE WHEN $8 AND finished_at IS NULL THEN NOW() ELSE finished_at END
		WHERE id = $1 AND (status = $2 OR status NOT IN ($9, $10, $11))
	`

	result, err := r.db.Pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Progress,
		task.ThumbnailURL,
		modelURLs,
		textureURLs,
		task.ErrorMessage,
		task.Status.Terminal(),
		models.StatusSucceeded, models.StatusFailed, models.StatusDeleted,
	)
	if err != nil {
		return fmt.Errorf("save merge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func (r *PostgresTaskRepo) ListInProgress(ctx context.Context, limit int) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE status = $1 ORDER BY created_at LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, models.StatusInProgress, limit)
	if err != nil {
		return nil, fmt.Errorf("list in progress: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresTaskRepo) scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		imageURLs   []byte
		modelURLs   []byte
		textureURLs []byte
	)

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.TraceID,
		&task.Source,
		&task.Prompt,
		&task.ImageURL,
		&imageURLs,
		&task.RefineFrom,
		&task.Mode,
		&task.MeshyTaskID,
		&task.Status,
		&task.Progress,
		&task.ThumbnailURL,
		&modelURLs,
		&textureURLs,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&task.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if err := unmarshalNullable(imageURLs, &task.ImageURLs); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(modelURLs, &task.ModelURLs); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(textureURLs, &task.TextureURLs); err != nil {
		return nil, err
	}

	return &task, nil
}

func marshalNullable(v interface{}, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return data, nil
}

func unmarshalNullable(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}
