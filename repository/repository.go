package repository

import (
	"context"
	"errors"

	"keyforge/models"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrDesignNotFound   = errors.New("design not found")
	ErrAlreadySubmitted = errors.New("task already submitted")
)

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id, ownerID string) (*models.Task, error)
	GetTaskByMeshyID(ctx context.Context, meshyID string) (*models.Task, error)
	MarkSubmitted(ctx context.Context, id, meshyID string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	SaveMerge(ctx context.Context, task *models.Task) error
	ListInProgress(ctx context.Context, limit int) ([]*models.Task, error)
}

type DesignRepository interface {
	UpsertDesign(ctx context.Context, design *models.Design) (string, error)
	GetDesignByTaskID(ctx context.Context, taskID string) (*models.Design, error)
}
