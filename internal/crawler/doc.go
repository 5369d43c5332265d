// Package crawler defines the domain model shared by the note crawl pipeline:
// canonical note and comment records, run state, the closed enumerations used
// at the transport boundary, and the upstream capabilities the orchestrator
// consumes.
package crawler
