// Package tracker turns a stateless activity feed into a history-aware view.
//
// The monitored media stack reports what is happening right now (downloads,
// transcodes, streams) with a progress percentage, but nothing about when an
// activity started or how it ended. Reconcile is called once per poll tick
// with the current snapshot list and the previous State, and returns the next
// State:
//
//   - Start times are inferred. An activity first seen below 2% progress
//     started at that tick. One first seen further along has an unknown start
//     until its progress moves forward by at least one point, and that tick is
//     used as a proxy start.
//   - Reaching 100% creates a CompletedRecord with the elapsed time. Exactly
//     one record is ever created per activity id.
//   - An activity that disappears from the feed for longer than CancelAfter is
//     dropped. If it never completed, a record marked "cancelled or
//     incomplete" is synthesized for it.
//   - Completed records are kept for CompletedRetention.
//
// Reconcile performs no I/O and never mutates its input, so callers own
// timer driving and persistence. See the poller package for the shell that
// runs it.
//
// # Example
//
//	state := tracker.NewState()
//	cfg := tracker.DefaultConfig()
//
//	state, changes := tracker.Reconcile(state, snapshots, time.Now(), cfg)
//	for _, err := range changes.Skipped {
//	    logger.Warn("skipping activity", "error", err)
//	}
//	if changes.Changed() {
//	    // persist state.Tracked and state.Completed
//	}
package tracker
