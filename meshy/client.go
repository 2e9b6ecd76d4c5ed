package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"keyforge/models"
)

var ErrUnknownMode = errors.New("unknown task mode")

const (
	imageTo3DPath      = "/openapi/v1/image-to-3d"
	multiImageTo3DPath = "/openapi/v1/multi-image-to-3d"
	textTo3DPath       = "/openapi/v2/text-to-3d"
)

// Client talks to the Meshy text/image-to-3D API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BuildSubmit resolves the endpoint and request body for a task. The mapping
// over (source, refine) is total: every valid mode yields a spec.
func BuildSubmit(task *models.Task) (*SubmitSpec, error) {
	switch task.Mode {
	case models.ModeImage:
		return &SubmitSpec{
			Path: imageTo3DPath,
			Body: imageTo3DRequest{
				ImageURL:      task.ImageURL,
				ShouldRemesh:  true,
				ShouldTexture: true,
				EnablePBR:     true,
			},
		}, nil
	case models.ModeMultiImage:
		return &SubmitSpec{
			Path: multiImageTo3DPath,
			Body: multiImageTo3DRequest{
				ImageURLs:     task.ImageURLs,
				ShouldRemesh:  true,
				ShouldTexture: true,
				EnablePBR:     true,
			},
		}, nil
	case models.ModeTextPreview:
		return &SubmitSpec{
			Path: textTo3DPath,
			Body: textTo3DRequest{
				Mode:         "preview",
				Prompt:       task.Prompt,
				ShouldRemesh: true,
			},
		}, nil
	case models.ModeTextRefine:
		return &SubmitSpec{
			Path: textTo3DPath,
			Body: textTo3DRequest{
				Mode:          "refine",
				PreviewTaskID: task.RefineFrom,
				EnablePBR:     true,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, task.Mode)
}

// StatusPath resolves the status endpoint for a provider job id by mode.
func StatusPath(providerID string, mode models.TaskMode) (string, error) {
	switch mode {
	case models.ModeImage:
		return imageTo3DPath + "/" + providerID, nil
	case models.ModeMultiImage:
		return multiImageTo3DPath + "/" + providerID, nil
	case models.ModeTextPreview, models.ModeTextRefine:
		return textTo3DPath + "/" + providerID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Submit sends the task to the provider and returns the provider job id.
// Any non-2xx response comes back as *APIError with the raw body attached.
func (c *Client) Submit(ctx context.Context, task *models.Task) (string, error) {
	spec, err := BuildSubmit(task)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(spec.Body)
	if err != nil {
		return "", fmt.Errorf("marshal submit body: %w", err)
	}

	c.logger.Info("Submitting generation task",
		zap.String("task_id", task.ID),
		zap.String("mode", string(task.Mode)),
		zap.String("path", spec.Path),
	)

	raw, err := c.do(ctx, http.MethodPost, spec.Path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("submit response missing result id")
	}

	return resp.Result, nil
}

// FetchStatus retrieves the provider's view of a job. Errors here are
// transient from the task's point of view; callers retry on the next poll.
func (c *Client) FetchStatus(ctx context.Context, providerID string, mode models.TaskMode) (models.Snapshot, error) {
	path, err := StatusPath(providerID, mode)
	if err != nil {
		return models.Snapshot{}, err
	}

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return models.Snapshot{}, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode status response: %w", err)
	}

	snap := models.Snapshot{
		Status:       MapStatus(resp.Status),
		Progress:     resp.Progress,
		ThumbnailURL: resp.ThumbnailURL,
		ModelURLs:    resp.ModelURLs,
		TextureURLs:  resp.TextureURLs,
	}
	if resp.TaskError != nil {
		snap.ErrorMessage = resp.TaskError.Message
	}

	return snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call meshy: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read meshy response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return raw, nil
}
