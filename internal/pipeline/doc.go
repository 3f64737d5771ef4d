// Package pipeline provides the orchestration logic that turns an export
// into a finished memories library.
//
// # Pipeline
//
// The Pipeline coordinates the entire process:
//
//  1. Scan an export folder, or read a manifest of remote memories
//  2. Pair every main file with its overlay
//  3. Detect the hardware video encoders once
//  4. Build a plan of actions
//  5. Execute the plan: download, extract, rename, combine, apply
//     metadata and clean up
//
// # Basic Usage
//
//	p := pipeline.New(settings, log, func(e pipeline.Event) {
//	    fmt.Println(e.Message)
//	})
//
//	plan, err := p.Plan(ctx, "memories_history.html")
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//
//	stats, err := p.Run(ctx, plan)
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//
// # Concurrency
//
// The Executor has one bounded pool per stage family:
//   - DownloadWorkers: downloads
//   - ImageWorkers: extraction, renames, copies and image composites
//   - VideoWorkers: video composites
//
// Metadata and cleanup actions run on the worker that finished their last
// dependency.
//
// # Progress Tracking
//
// Progress is reported via a callback that receives an Event per started,
// retried and settled action. Dry runs emit one EventPlanned per action,
// carrying the line Plan.Describe renders for it.
//
// # Retry Logic
//
// Downloads failing with a transient error are retried with exponential
// backoff, configurable via settings.DownloadMaxRetries,
// settings.DownloadRetryCooldown and settings.DownloadRetryExponent. No
// other action is retried.
package pipeline
