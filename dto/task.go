package dto

import (
	"keyforge/models"
)

type CreateTaskRequest struct {
	Source     string   `json:"source"`
	Prompt     string   `json:"prompt,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	ImageURLs  []string `json:"image_urls,omitempty"`
	RefineFrom string   `json:"refine_from,omitempty"`
}

type TaskResponse struct {
	ID           string               `json:"id"`
	TraceID      string               `json:"trace_id,omitempty"`
	Source       string               `json:"source"`
	Mode         string               `json:"mode"`
	MeshyTaskID  string               `json:"meshy_task_id,omitempty"`
	Status       string               `json:"status"`
	Progress     int                  `json:"progress"`
	ThumbnailURL string               `json:"thumbnail_url,omitempty"`
	ModelURLs    *models.ModelURLs    `json:"model_urls,omitempty"`
	TextureURLs  []models.TextureSet  `json:"texture_urls,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CreatedAt    string               `json:"created_at"`
	StartedAt    *string              `json:"started_at,omitempty"`
	FinishedAt   *string              `json:"finished_at,omitempty"`
}

type WebhookAck struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
