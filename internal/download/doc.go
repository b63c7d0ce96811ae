// Package download coordinates attachment downloads.
//
// # Coordinator
//
// The Coordinator decides whether an attachment needs to be fetched and owns
// the state of every transfer:
//
//  1. URL attachments are ready immediately
//  2. Linked files and embedded images fail with ErrIncompatibleAttachment
//  3. Local files are ready immediately
//  4. Remote files are downloaded
//  5. Stale local files are validated, then re-downloaded, falling back to
//     the local copy if the transfer fails
//
// # Basic Usage
//
//	coord := download.NewCoordinator(client, resolver, store, validator, download.Options{
//	    MaxConcurrent: 4,
//	    Logger:        logger,
//	})
//	coord.Initialize(userID)
//
//	updates, unsubscribe := coord.Subscribe(64)
//	defer unsubscribe()
//
//	coord.DownloadIfNeeded(attachment, parentKey)
//	for u := range updates {
//	    fmt.Println(u.Key, u.Kind, u.Progress)
//	}
//
// # Updates
//
// Every state change is published as an Update with one of the kinds
// KindProgress, KindReady, KindFailed or KindCancelled. Updates for one
// attachment arrive in order; progress never decreases before the terminal
// update. Subscribers only see updates published after they subscribed.
//
// # Errors
//
// A failed download leaves a sticky error readable through Data until the next
// attempt for the same attachment starts. Failures are never
// retried by the Coordinator; transient network errors are retried inside the
// Operation according to the RetryPolicy.
//
// # Batch Progress
//
// BatchData reports the mean progress of the downloads in flight together
// with the number still active and the number started in the current batch.
// Both counters reset when the last download finishes.
package download
