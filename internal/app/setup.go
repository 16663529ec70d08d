package app

import (
	"context"
	"os"

	"github.com/vk/genopipe/internal/fetch"
)

// runSetup acquires every bundle the manifest declares. Setup is idempotent
// and safe to re-run: bundles whose completion markers exist are skipped
// unless the force flag was given. The first acquisition failure aborts,
// because the pipeline must not be declared runnable on top of a partially
// fetched bundle.
func (a *App) runSetup(ctx context.Context) error {
	if err := a.ws.EnsureDirs(); err != nil {
		return err
	}

	fetcher := fetch.New(fetch.WithEnviron(a.ws.Environ(os.Environ())))

	a.logger.Info("🚀 Starting setup phase.",
		"pipeline", a.pipeline.Name, "bundles", len(a.pipeline.Bundles), "force", a.config.Force)

	fetched, present := 0, 0
	for _, bundle := range a.pipeline.Bundles {
		outcome, err := fetcher.Fetch(ctx, bundle, a.config.Force)
		if err != nil {
			return err
		}
		if outcome == fetch.OutcomeAlreadyPresent {
			present++
		} else {
			fetched++
		}
	}

	a.logger.Info("🏁 Setup finished.", "fetched", fetched, "already_present", present)
	return nil
}
