package validation

import (
	"keyforge/models"
)

// Input checks that a new task carries exactly the fields its source needs.
// It runs before anything is persisted.
func Input(task *models.Task) error {
	switch task.Source {
	case models.SourceImage:
		if task.ImageURL == "" {
			return ErrMissingImageURL
		}
	case models.SourceMultiImage:
		if len(task.ImageURLs) == 0 {
			return ErrMissingImageURLs
		}
		for _, u := range task.ImageURLs {
			if u == "" {
				return ErrMissingImageURLs
			}
		}
	case models.SourceText:
		if task.Prompt == "" && task.RefineFrom == "" {
			return ErrMissingPrompt
		}
		if task.Mode == models.ModeTextRefine && task.RefineFrom == "" {
			return ErrMissingRefineFrom
		}
		if task.Mode == models.ModeTextPreview && task.Prompt == "" {
			return ErrMissingPrompt
		}
	default:
		return ErrUnknownSource
	}
	return nil
}
