package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/veralex/clausebridge-backend/internal/app"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/segmentation/engine"
)

func main() {
	a, err := app.New(engine.NewHeuristic())
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("Failed to start run forwarder", "error", err)
		os.Exit(1)
	}

	ids := os.Args[1:]
	if len(ids) == 0 {
		// Nothing to process: stay up forwarding run transitions until
		// interrupted.
		a.Log.Info("No upload ids given, forwarding run transitions")
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		return
	}

	ctx := context.Background()
	failures := 0
	for _, raw := range ids {
		uploadID, err := uuid.Parse(raw)
		if err != nil {
			a.Log.Error("Invalid staging upload id", "arg", raw, "error", err)
			failures++
			continue
		}

		run, err := a.Services.Segmentation.Process(ctx, uploadID)
		switch {
		case errors.Is(err, errs.ErrDuplicateRun):
			a.Log.Info("Upload already segmented at this version", "staging_upload_id", uploadID)
		case err != nil:
			a.Log.Error("Segmentation failed", "staging_upload_id", uploadID, "error", err)
			failures++
		default:
			a.Log.Info("Segmentation finished",
				"staging_upload_id", uploadID,
				"run_id", run.ID,
				"status", run.Status,
				"accepted_count", run.AcceptedCount,
			)
		}
	}
	if failures > 0 {
		a.Close()
		os.Exit(1)
	}
}
