package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	ai "venture-idea-analyzer/internal/infra/adapters/ai"
	"venture-idea-analyzer/internal/usecase"
)

// Runs the whole analysis pipeline in memory with the deterministic
// noop AI adapter: submit an idea, step through the stages the way the
// polling endpoint would, print the final report.
func main() {
	idea := flag.String("idea", "A mobile app that connects freelance tutors with students for on-demand video lessons", "idea text to analyze")
	flag.Parse()

	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	ideas := newMemIdeaRepo()
	jobs := newMemJobRepo(ideas)
	adapter := ai.NewNoopAIAdapter()

	exec := usecase.NewStageExecutor(jobs, adapter, "noop-model", &logger)
	synth := usecase.NewSynthesizer(adapter, "noop-model", &logger)
	step := usecase.NewStepDriver(jobs, exec, synth, newMemLocker(), time.Minute, &logger)
	submitUC := usecase.NewSubmissionUseCase(ideas, jobs, step, &logger)

	ctx := context.Background()
	job, err := submitUC.Submit(ctx, *idea, map[string]string{"source": "demo"})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	fmt.Printf("submitted: job=%s\n", job.ID)

	// Drive the job the way a polling client with trigger_next would.
	for i := 0; i < 20; i++ {
		outc, err := step.Advance(ctx, job.ID)
		if err != nil {
			log.Fatalf("advance: %v", err)
		}
		fmt.Printf("step %2d: state=%-8s progress=%3d%% ran=%s\n",
			i+1, usecase.Verdict(outc.Job), usecase.Progress(outc.Job), outc.Ran)
		if outc.Job.Status.Terminal() {
			job = outc.Job
			break
		}
	}

	if job.FinalReport == nil {
		log.Fatal("job never produced a report")
	}
	pretty, _ := json.MarshalIndent(job.FinalReport, "", "  ")
	fmt.Printf("\nfinal report (%s):\n%s\n", job.Status, pretty)
}
