package errorhandler

import (
	"context"
	"net/http"

	"github.com/civicrewards/rewards-api/internal/pkg/errs"
	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/response"
)

const maxStackLines = 20

// HandleInternal logs an unexpected error with its stack and sends a generic 500.
func HandleInternal(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logger.FromContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Strs("stack", errs.StackLines(err, maxStackLines)).
		Msg("Request failed")

	response.InternalError(w)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	logger.FromContext(ctx).Warn().
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
}
