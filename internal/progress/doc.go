// Package progress builds the lifecycle events of a crawl run and delivers
// them to a downstream sink. Delivery failures are logged and never change the
// outcome of a run.
package progress
