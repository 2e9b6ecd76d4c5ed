package validation

import "errors"

var (
	ErrUnknownSource     = errors.New("unknown task source")
	ErrMissingImageURL   = errors.New("image_url is required for image tasks")
	ErrMissingImageURLs  = errors.New("image_urls must be non-empty for multi_image tasks")
	ErrMissingPrompt     = errors.New("prompt is required for text tasks")
	ErrMissingRefineFrom = errors.New("refine_from must reference a preview task")
	ErrRefineNotReady    = errors.New("refine_from must reference a succeeded preview task")
)

// Is reports whether err is one of the input validation sentinels, so the
// HTTP layer can map them to a 400 without enumerating each one.
func Is(err error) bool {
	for _, sentinel := range []error{
		ErrUnknownSource,
		ErrMissingImageURL,
		ErrMissingImageURLs,
		ErrMissingPrompt,
		ErrMissingRefineFrom,
		ErrRefineNotReady,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
