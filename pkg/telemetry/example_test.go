package telemetry_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/telemetry"
)

// Example_basicSetup demonstrates telemetry initialization.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		fmt.Println("init failed:", err)
		return
	}
	defer tel.Shutdown(context.Background())

	fmt.Println("Telemetry initialized")
	// Output: Telemetry initialized
}

// Example_eventPublishing demonstrates subscribing to generation events.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("%s: %s\n", event.Type, event.Message)
	}, telemetry.FilterByType(telemetry.EventTypeRunStarted, telemetry.EventTypeRunCompleted))

	ctx, run := tel.StartRun(context.Background(), []string{"BirdGame"})
	_ = ctx
	run.End(&engine.GenerationResult{RunID: "r1", Status: engine.RunStatusSucceeded}, nil)

	// Output:
	// run.started: Run started for 1 solution(s)
	// run.completed: Run r1 completed with status: succeeded
}

// Example_observer demonstrates the observer handed to the generator.
func Example_observer() {
	tel, _ := telemetry.NewTelemetry(telemetry.DefaultConfig())
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("%s %s\n", event.Type, event.Data["stage"])
	}, telemetry.FilterByType(telemetry.EventTypeStageCompleted, telemetry.EventTypeStageFailed))

	obs := tel.Observer()
	_, end := obs.StageStarted(context.Background(), "BirdGame", engine.StageExpanded)
	end(nil)
	_, end = obs.StageStarted(context.Background(), "BirdGame", engine.StageGraphBuilt)
	end(errors.New("cycle"))

	// Output:
	// stage.completed expanded
	// stage.failed graph_built
}
