package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"keyforge/analytics"
	"keyforge/dto"
	"keyforge/meshy"
	"keyforge/mirror"
	"keyforge/models"
	"keyforge/repository"
	"keyforge/validation"
)

// Provider is the external generation API, satisfied by *meshy.Client.
type Provider interface {
	Submit(ctx context.Context, task *models.Task) (string, error)
	FetchStatus(ctx context.Context, providerID string, mode models.TaskMode) (models.Snapshot, error)
}

// AssetMirror relocates provider assets into system storage.
type AssetMirror interface {
	MirrorAssets(ctx context.Context, ownerID, taskID string, assets mirror.Assets) mirror.Assets
}

// SnapshotCache fronts the store for terminal task reads. May be nil.
type SnapshotCache interface {
	Get(ctx context.Context, taskID string) (*models.Task, error)
	Set(ctx context.Context, task *models.Task) error
}

type TaskService struct {
	tasks    repository.TaskRepository
	designs  repository.DesignRepository
	provider Provider
	mirror   AssetMirror
	cache    SnapshotCache
	events   analytics.Producer
	logger   *zap.Logger
}

func NewTaskService(
	tasks repository.TaskRepository,
	designs repository.DesignRepository,
	provider Provider,
	assetMirror AssetMirror,
	cache SnapshotCache,
	events analytics.Producer,
	logger *zap.Logger,
) *TaskService {
	return &TaskService{
		tasks:    tasks,
		designs:  designs,
		provider: provider,
		mirror:   assetMirror,
		cache:    cache,
		events:   events,
		logger:   logger,
	}
}

// Create validates the input, persists a PENDING row, then submits to the
// provider. The row is written before the provider call so a crash between
// the two can never leave a provider job with no local trace. A rejected
// submission marks the row FAILED and propagates the provider error.
func (s *TaskService) Create(ctx context.Context, ownerID, traceID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	task := &models.Task{
		OwnerID:   ownerID,
		TraceID:   traceID,
		Source:    models.TaskSource(req.Source),
		Prompt:    req.Prompt,
		ImageURL:  req.ImageURL,
		ImageURLs: req.ImageURLs,
		Status:    models.StatusPending,
	}

	refine := task.Source == models.SourceText && req.RefineFrom != ""
	task.Mode = models.ModeFor(task.Source, refine)

	if refine {
		// Resolve the caller's preview task to the provider job id the
		// refine endpoint expects. Ownership is checked by the lookup.
		prior, err := s.tasks.GetTask(ctx, req.RefineFrom, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrTaskNotFound) {
				return nil, validation.ErrRefineNotReady
			}
			return nil, err
		}
		if prior.Status != models.StatusSucceeded || prior.Mode != models.ModeTextPreview || prior.MeshyTaskID == "" {
			return nil, validation.ErrRefineNotReady
		}
		task.RefineFrom = prior.MeshyTaskID
	}

	if err := validation.Input(task); err != nil {
		return nil, err
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	meshyID, err := s.provider.Submit(ctx, task)
	if err != nil {
		if failErr := s.tasks.MarkFailed(ctx, task.ID, diagnostic(err)); failErr != nil {
			s.logger.Error("Failed to record submission failure",
				zap.String("task_id", task.ID),
				zap.Error(failErr),
			)
		}
		s.logger.Error("Provider rejected submission",
			zap.String("trace_id", traceID),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.tasks.MarkSubmitted(ctx, task.ID, meshyID); err != nil {
		return nil, err
	}
	task.Status = models.StatusInProgress
	task.MeshyTaskID = meshyID
	now := time.Now().UTC()
	task.StartedAt = &now

	s.emit(ctx, analytics.EventModelRequested, task)

	s.logger.Info("Generation task submitted",
		zap.String("trace_id", traceID),
		zap.String("task_id", task.ID),
		zap.String("meshy_task_id", meshyID),
		zap.String("mode", string(task.Mode)),
	)

	return toResponse(task), nil
}

// Status returns the caller's view of a task, reconciling against the
// provider first when the task is still in flight.
func (s *TaskService) Status(ctx context.Context, taskID, ownerID string) (*dto.TaskResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, taskID); err == nil {
			if cached.OwnerID == ownerID && cached.Status.Terminal() {
				return toResponse(cached), nil
			}
		}
	}

	task, err := s.tasks.GetTask(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}

	task, err = s.Reconcile(ctx, task)
	if err != nil {
		return nil, err
	}

	return toResponse(task), nil
}

// Reconcile polls the provider for an in-flight task and merges the result.
// A provider fetch failure is transient: the caller gets the prior
// known-good state and the next poll retries. Terminal tasks are returned
// unchanged, which makes repeated invocation a safe no-op.
func (s *TaskService) Reconcile(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.Status.Terminal() || task.MeshyTaskID == "" {
		return task, nil
	}

	snap, err := s.provider.FetchStatus(ctx, task.MeshyTaskID, task.Mode)
	if err != nil {
		s.logger.Warn("Provider status fetch failed, serving last known state",
			zap.String("task_id", task.ID),
			zap.String("meshy_task_id", task.MeshyTaskID),
			zap.Error(err),
		)
		return task, nil
	}

	return s.applySnapshot(ctx, task, snap)
}

// applySnapshot is the single merge path shared by polling and the webhook.
// On the edge into SUCCEEDED it mirrors assets and links the design before
// the task becomes visible as SUCCEEDED, so no reader ever observes a
// succeeded task without its mirrored URLs.
func (s *TaskService) applySnapshot(ctx context.Context, task *models.Task, snap models.Snapshot) (*models.Task, error) {
	// A terminal task is settled: its outputs already point at mirrored
	// storage and a late or duplicate snapshot must not touch them.
	if task.Status.Terminal() {
		return task, nil
	}

	succeeding := snap.Status == models.StatusSucceeded &&
		models.CanTransition(task.Status, models.StatusSucceeded)

	if !succeeding {
		if task.Merge(snap) {
			if err := s.tasks.SaveMerge(ctx, task); err != nil {
				return nil, err
			}
		}
		if task.Status.Terminal() {
			stampFinished(task)
			s.cacheTerminal(ctx, task)
		}
		return task, nil
	}

	task.Merge(snap)

	mirrored := s.mirror.MirrorAssets(ctx, task.OwnerID, task.ID, mirror.Assets{
		ThumbnailURL: task.ThumbnailURL,
		ModelURLs:    task.ModelURLs,
		TextureURLs:  task.TextureURLs,
	})
	task.ThumbnailURL = mirrored.ThumbnailURL
	task.ModelURLs = mirrored.ModelURLs
	task.TextureURLs = mirrored.TextureURLs

	if _, err := s.linkDesign(ctx, task); err != nil {
		return nil, err
	}

	if err := s.tasks.SaveMerge(ctx, task); err != nil {
		return nil, err
	}

	stampFinished(task)
	s.emit(ctx, analytics.EventModelSucceeded, task)
	s.cacheTerminal(ctx, task)

	s.logger.Info("Generation task succeeded",
		zap.String("task_id", task.ID),
		zap.String("meshy_task_id", task.MeshyTaskID),
	)

	return task, nil
}

// linkDesign upserts the design row keyed by task id. The uniqueness
// constraint makes concurrent reconcilers converge on one row.
func (s *TaskService) linkDesign(ctx context.Context, task *models.Task) (string, error) {
	design := &models.Design{
		TaskID:       task.ID,
		OwnerID:      task.OwnerID,
		ThumbnailURL: task.ThumbnailURL,
		ModelURLs:    task.ModelURLs,
		TextureURLs:  task.TextureURLs,
	}
	return s.designs.UpsertDesign(ctx, design)
}

func (s *TaskService) cacheTerminal(ctx context.Context, task *models.Task) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, task); err != nil {
		s.logger.Warn("Failed to cache terminal snapshot",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (s *TaskService) emit(ctx context.Context, name string, task *models.Task) {
	err := s.events.Emit(ctx, &analytics.Event{
		Name:    name,
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Mode:    string(task.Mode),
		TraceID: task.TraceID,
	})
	if err != nil {
		s.logger.Warn("Analytics emit failed",
			zap.String("event", name),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func stampFinished(task *models.Task) {
	if task.FinishedAt == nil {
		now := time.Now().UTC()
		task.FinishedAt = &now
	}
}

// diagnostic prefers the raw provider body over Go error text.
func diagnostic(err error) string {
	var apiErr *meshy.APIError
	if errors.As(err, &apiErr) && apiErr.Body != "" {
		return apiErr.Body
	}
	return err.Error()
}

func toResponse(task *models.Task) *dto.TaskResponse {
	resp := &dto.TaskResponse{
		ID:           task.ID,
		TraceID:      task.TraceID,
		Source:       string(task.Source),
		Mode:         string(task.Mode),
		MeshyTaskID:  task.MeshyTaskID,
		Status:       string(task.Status),
		Progress:     task.Progress,
		ThumbnailURL: task.ThumbnailURL,
		TextureURLs:  task.TextureURLs,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt.Format(time.RFC3339),
	}
	if !task.ModelURLs.Empty() {
		urls := task.ModelURLs
		resp.ModelURLs = &urls
	}
	if task.StartedAt != nil {
		formatted := task.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &formatted
	}
	if task.FinishedAt != nil {
		formatted := task.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &formatted
	}
	return resp
}
