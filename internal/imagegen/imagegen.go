// Package imagegen creates fallback article images from a text prompt.
package imagegen

import (
	"errors"

	"github.com/deusflow/dispatch/internal/ratelimit"
)

var errEmptyPrompt = errors.New("image prompt is empty")

// reserve checks the prompt and takes one image call from the run budget.
func reserve(budget *ratelimit.Budget, prompt string) error {
	if prompt == "" {
		return errEmptyPrompt
	}
	if budget != nil {
		return budget.Use(ratelimit.Image)
	}
	return nil
}
