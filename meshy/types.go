package meshy

import (
	"fmt"

	"keyforge/models"
)

// APIError is a non-2xx provider response with the raw body preserved as the
// diagnostic payload.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meshy: status %d: %s", e.StatusCode, e.Body)
}

// SubmitSpec is a fully resolved submission: which endpoint to call and what
// to send. It is derived purely from (source, refine) so the mapping can be
// checked exhaustively.
type SubmitSpec struct {
	Path string
	Body interface{}
}

type imageTo3DRequest struct {
	ImageURL      string `json:"image_url"`
	ShouldRemesh  bool   `json:"should_remesh"`
	ShouldTexture bool   `json:"should_texture"`
	EnablePBR     bool   `json:"enable_pbr"`
}

type multiImageTo3DRequest struct {
	ImageURLs     []string `json:"image_urls"`
	ShouldRemesh  bool     `json:"should_remesh"`
	ShouldTexture bool     `json:"should_texture"`
	EnablePBR     bool     `json:"enable_pbr"`
}

type textTo3DRequest struct {
	Mode          string `json:"mode"`
	Prompt        string `json:"prompt,omitempty"`
	PreviewTaskID string `json:"preview_task_id,omitempty"`
	ShouldRemesh  bool   `json:"should_remesh,omitempty"`
	EnablePBR     bool   `json:"enable_pbr,omitempty"`
}

type submitResponse struct {
	Result string `json:"result"`
}

type taskError struct {
	Message string `json:"message"`
}

type statusResponse struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Progress     int                  `json:"progress"`
	ThumbnailURL string               `json:"thumbnail_url"`
	ModelURLs    *models.ModelURLs    `json:"model_urls"`
	TextureURLs  []models.TextureSet  `json:"texture_urls"`
	TaskError    *taskError           `json:"task_error"`
}

// MapStatus translates a provider status string into the internal enum.
// Unknown strings map to empty, which merges as "not reported".
func MapStatus(s string) models.TaskStatus {
	switch s {
	case "PENDING":
		return models.StatusPending
	case "IN_PROGRESS":
		return models.StatusInProgress
	case "SUCCEEDED":
		return models.StatusSucceeded
	case "FAILED":
		return models.StatusFailed
	case "CANCELED", "EXPIRED":
		return models.StatusDeleted
	default:
		return ""
	}
}
