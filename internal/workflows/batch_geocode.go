package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// BatchGeocodeWorkflowName is the registered workflow type.
const BatchGeocodeWorkflowName = "BatchGeocodeWorkflow"

// BatchGeocodeInput is the input for the batch geocoding workflow.
type BatchGeocodeInput struct {
	BatchSize int
	Provider  string
	Language  string
}

// BatchGeocodeResult counts the outcome of one batch.
type BatchGeocodeResult struct {
	Placed int
	Failed int
}

// BatchGeocodeWorkflow places markers that were stored with an address but
// no coordinates. Each marker is geocoded, then either saved with its
// coordinates or marked failed so it is not picked up again. A full batch
// continues as new to drain the backlog.
func BatchGeocodeWorkflow(ctx workflow.Context, input BatchGeocodeInput) (BatchGeocodeResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.BatchSize <= 0 {
		input.BatchSize = 50
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var pending []domain.Marker
	if err := workflow.ExecuteActivity(ctx, "ListPendingMarkers", input.BatchSize).Get(ctx, &pending); err != nil {
		return BatchGeocodeResult{}, err
	}
	logger.Info("Geocoding batch", "markers", len(pending))

	var result BatchGeocodeResult
	for _, m := range pending {
		var point domain.GeoPoint
		err := workflow.ExecuteActivity(ctx, "GeocodeAddress", m.Address, input.Provider, input.Language).Get(ctx, &point)
		if err != nil {
			logger.Warn("geocoding failed", "id", m.ID, "error", err)
			if err := workflow.ExecuteActivity(ctx, "MarkGeocodeFailed", m.ID, err.Error()).Get(ctx, nil); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}

		if err := workflow.ExecuteActivity(ctx, "SavePlacement", m.ID, point).Get(ctx, nil); err != nil {
			return result, err
		}
		result.Placed++
	}

	logger.Info("Batch geocoded", "placed", result.Placed, "failed", result.Failed)
	if len(pending) == input.BatchSize {
		return result, workflow.NewContinueAsNewError(ctx, BatchGeocodeWorkflow, input)
	}
	return result, nil
}
