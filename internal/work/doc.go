// Package work provides bounded concurrency and retry helpers for the
// per-instrument pipeline.
//
// # Pool
//
// Map fans a fixed number of jobs out over a Pool and collects the results in
// input order. Every job runs to completion; cancellation is observed by the
// jobs themselves through their context.
//
// # Retry
//
// RetryPolicy retries a call a fixed number of times after the first attempt,
// each attempt bounded by Timeout. Errors the policy does not consider
// retryable are returned immediately.
package work
