package health

import (
	"context"
	"fmt"

	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/detect"
)

// StructureCheck returns a readiness check that validates the project's
// on-disk structure. Missing required entries degrade the check and are
// counted in the detail; failing to inspect the root at all reports down.
func StructureCheck(root string, boot *bootstrap.Bootstrapper) CheckFunc {
	return func(ctx context.Context) Result {
		missing, err := boot.ValidateStructure(root)
		if err != nil {
			return Result{Status: StatusDown, Detail: err.Error()}
		}
		if len(missing) > 0 {
			return Result{
				Status: StatusDegraded,
				Detail: fmt.Sprintf("%d required entries missing, run recovery", len(missing)),
			}
		}
		return Result{Status: StatusOK}
	}
}

// ErrorLogCheck returns a readiness check over the persisted error log.
// Unresolved detected or recovering records degrade the check.
func ErrorLogCheck(det *detect.Detector) CheckFunc {
	return func(ctx context.Context) Result {
		recs, err := det.LoadErrors()
		if err != nil {
			return Result{Status: StatusDown, Detail: err.Error()}
		}
		open := 0
		for _, rec := range recs {
			if rec.Status == detect.StatusDetected || rec.Status == detect.StatusRecovering {
				open++
			}
		}
		if open > 0 {
			return Result{
				Status: StatusDegraded,
				Detail: fmt.Sprintf("%d unresolved errors in the log", open),
			}
		}
		return Result{Status: StatusOK}
	}
}
