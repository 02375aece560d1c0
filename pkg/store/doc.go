// Package store persists job state, the job queue, video catalogs, and
// the download/delivery dedup sets.
//
// JobStore is the single interface; two implementations exist:
//   - RedisStore backs the long-running worker deployment. Stage
//     transitions run inside a Lua script so the forward-only state
//     machine holds across processes, and the dedup sets use SADD as an
//     atomic check-and-set.
//   - MemoryStore backs one-shot CLI runs and tests.
//
// The stage machine is forward-only: pending, scraping, downloading,
// completed. Setting the current stage again is a no-op so a restarted
// worker can resume a job. The failed stage is reachable from anywhere
// and terminal.
package store
