// Package runner drives repeated API calls for the call command.
//
// A fixed pool of workers pulls permits from a scheduler paced by a
// golang.org/x/time/rate limiter; the run ends when the request total is
// reached, the duration cap expires, or the context is canceled:
//
//	r := runner.New(runner.Options{
//		Concurrency:   8,
//		TotalRequests: 200,
//		RatePerSecond: 50,
//		Requester:     runner.WithRetry(req, runner.RetryPolicy{MaxAttempts: 3, ShouldRetry: runner.RetryTransient}),
//		Observer:      collector,
//	})
//	result := r.Run(ctx)
//
// Every worker shares the same token guard through the HTTP client, so a
// burst of workers starting with an expired token triggers one login.
package runner
