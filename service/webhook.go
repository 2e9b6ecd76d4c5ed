package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keyforge/dto"
	"keyforge/meshy"
	"keyforge/models"
)

var ErrWebhookMissingID = errors.New("webhook payload missing task id")

// The provider's webhook payloads spell the same logical field several ways
// depending on the job type. Each field resolves against an ordered candidate
// list, first match wins.
var (
	webhookIDKeys        = []string{"task_id", "id", "result_id"}
	webhookModelGLBKeys  = []string{"model_glb_url", "model_url"}
	webhookThumbnailKeys = []string{"thumbnail_url", "preview_url"}
	webhookErrorKeys     = []string{"error", "error_message", "message"}
)

// ParseWebhook extracts the provider job id and a status snapshot from a raw
// callback payload.
func ParseWebhook(payload map[string]interface{}) (string, models.Snapshot, error) {
	providerID := lookupString(payload, webhookIDKeys)
	if providerID == "" {
		return "", models.Snapshot{}, ErrWebhookMissingID
	}

	snap := models.Snapshot{
		Status:       meshy.MapStatus(lookupString(payload, []string{"status"})),
		ThumbnailURL: lookupString(payload, webhookThumbnailKeys),
		ErrorMessage: lookupString(payload, webhookErrorKeys),
	}

	if progress, ok := payload["progress"].(float64); ok {
		snap.Progress = int(progress)
	}

	urls := models.ModelURLs{
		GLB: lookupString(payload, webhookModelGLBKeys),
	}
	if nested, ok := payload["model_urls"].(map[string]interface{}); ok {
		if urls.GLB == "" {
			urls.GLB = lookupString(nested, []string{"glb"})
		}
		urls.FBX = lookupString(nested, []string{"fbx"})
		urls.USDZ = lookupString(nested, []string{"usdz"})
		urls.OBJ = lookupString(nested, []string{"obj"})
	}
	if !urls.Empty() {
		snap.ModelURLs = &urls
	}

	return providerID, snap, nil
}

// HandleWebhook is the push counterpart of Reconcile. The callback knows only
// the provider's job id, so lookup goes through it. An unknown id returns
// ErrTaskNotFound without any writes.
func (s *TaskService) HandleWebhook(ctx context.Context, payload map[string]interface{}) (*dto.WebhookAck, error) {
	providerID, snap, err := ParseWebhook(payload)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetTaskByMeshyID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	task, err = s.applySnapshot(ctx, task, snap)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Webhook applied",
		zap.String("task_id", task.ID),
		zap.String("meshy_task_id", providerID),
		zap.String("status", string(task.Status)),
	)

	return &dto.WebhookAck{Status: "ok", TaskID: task.ID}, nil
}

func lookupString(payload map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
