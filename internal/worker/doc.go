// Package worker provides a supervised goroutine pool for player tasks.
//
// The Pool wraps an errgroup.Group. Every job receives the pool's context,
// which is cancelled by Stop, so no task outlives the scenario that owns it.
// A panicking job is recovered and counted; it never takes down its siblings.
//
// # Basic Usage
//
//	pool := worker.NewPool(0) // no concurrency limit
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	for _, p := range players {
//	    pool.Submit(func(ctx context.Context) {
//	        p.Run(ctx, plan)
//	    })
//	}
//
//	if !pool.Wait(2 * time.Minute) {
//	    // some jobs are still running; Stop cancels them
//	}
//
// # Concurrency Limit
//
// NewPool(n) with n > 0 bounds the number of concurrently running jobs.
// Submit blocks until a slot is free; TrySubmit returns false instead.
package worker
