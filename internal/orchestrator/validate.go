package orchestrator

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/thebtf/orion/internal/engine"
)

// validateResult checks every returned cluster and the partition invariant.
// All violations are reported together, each naming its cluster index.
func validateResult(result *engine.Result, known map[string]bool) error {
	if len(result.Clusters) == 0 {
		return validationError(fmt.Errorf("engine returned no clusters for %d forces", len(known)))
	}

	var errs error
	owner := make(map[string]int, len(known))
	for i, c := range result.Clusters {
		if strings.TrimSpace(c.Algorithm) == "" {
			errs = multierr.Append(errs, fmt.Errorf("cluster %d: algorithm is required", i))
		}
		if strings.TrimSpace(c.Label) == "" {
			errs = multierr.Append(errs, fmt.Errorf("cluster %d: label is required", i))
		}
		if len(c.ForceIDs) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("cluster %d: forceIds must be a non-empty array", i))
		}
		if c.Size <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("cluster %d: size must be positive, got %d", i, c.Size))
		}

		for _, id := range c.ForceIDs {
			if !known[id] {
				errs = multierr.Append(errs, fmt.Errorf("cluster %d: unknown force id %q", i, id))
				continue
			}
			prev, taken := owner[id]
			switch {
			case taken && prev == i:
				errs = multierr.Append(errs, fmt.Errorf("cluster %d: duplicate force id %q", i, id))
			case taken:
				errs = multierr.Append(errs, fmt.Errorf("cluster %d: force id %q already assigned to cluster %d", i, id, prev))
			default:
				owner[id] = i
			}
		}
	}
	if errs != nil {
		return validationError(errs)
	}
	return nil
}

// coveragePercent returns the share of loaded forces assigned to some cluster.
func coveragePercent(result *engine.Result, total int) float64 {
	if total == 0 {
		return 0
	}
	assigned := make(map[string]struct{}, total)
	for _, c := range result.Clusters {
		for _, id := range c.ForceIDs {
			assigned[id] = struct{}{}
		}
	}
	return float64(len(assigned)) * 100 / float64(total)
}
