package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"keyforge/database"
	"keyforge/models"
)

type PostgresDesignRepo struct {
	db *database.DB
}

func NewPostgresDesignRepo(db *database.DB) DesignRepository {
	return &PostgresDesignRepo{db: db}
}

// UpsertDesign inserts a design for the task or refreshes its asset URLs if
// one exists. The uniqueness constraint on task_id makes retries converge on
// the same row.
func (r *PostgresDesignRepo) UpsertDesign(ctx context.Context, design *models.Design) (string, error) {
	modelURLs, err := marshalNullable(design.ModelURLs, !design.ModelURLs.Empty())
	if err != nil {
		return "", err
	}
	textureURLs, err := marshalNullable(design.TextureURLs, len(design.TextureURLs) > 0)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO designs (task_id, owner_id, thumbnail_url, model_urls, texture_urls)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE
		SET thumbnail_url = EXCLUDED.thumbnail_url,
			model_urls = EXCLUDED.model_urls,
			texture_urls = EXCLUDED.texture_urls,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err = r.db.Pool.QueryRow(ctx, query,
		design.TaskID,
		design.OwnerID,
		design.ThumbnailURL,
		modelURLs,
		textureURLs,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert design: %w", err)
	}

	design.ID = id
	return id, nil
}

func (r *PostgresDesignRepo) GetDesignByTaskID(ctx context.Context, taskID string) (*models.Design, error) {
	query := `
		SELECT id, task_id, owner_id, thumbnail_url, model_urls, texture_urls, created_at, updated_at
		FROM designs
		WHERE task_id = $1
	`

	var (
		design      models.Design
		modelURLs   []byte
		textureURLs []byte
	)

	err := r.db.Pool.QueryRow(ctx, query, taskID).Scan(
		&design.ID,
		&design.TaskID,
		&design.OwnerID,
		&design.ThumbnailURL,
		&modelURLs,
		&textureURLs,
		&design.CreatedAt,
		&design.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDesignNotFound
		}
		return nil, fmt.Errorf("scan design: %w", err)
	}

	if err := unmarshalNullable(modelURLs, &design.ModelURLs); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(textureURLs, &design.TextureURLs); err != nil {
		return nil, err
	}

	return &design, nil
}
