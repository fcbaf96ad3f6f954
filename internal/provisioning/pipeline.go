package provisioning

import (
	"fmt"
	"time"
)

// RunPhases executes all provisioning phases sequentially in the given
// order. The order is a dependency order: packages before anything that
// configures them, secrets before any file that embeds them, resources
// before the application steps that need them. The first failing phase
// aborts the remainder.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	ctx.Observer.Info("starting provisioning", "phases", len(phases))

	for i, phase := range phases {
		obs := ctx.Observer.WithPhase(phase.Name())
		phaseStart := time.Now()

		obs.Info("starting", "step", fmt.Sprintf("%d/%d", i+1, len(phases)))

		if err := phase.Provision(ctx.WithObserver(obs)); err != nil {
			obs.Warn("failed", "error", err)
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		obs.Info("completed", "elapsed", time.Since(phaseStart).Round(time.Millisecond))
	}

	ctx.Observer.Info("provisioning completed", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
