// Package operator implements the watch-and-reconcile engine behind every operatorkit
// operator.
//
// # Overview
//
// An Operator owns one resource kind in one namespace scope. It validates its
// Descriptor, bootstraps the custom resource definition when the kind is a custom
// resource, and builds a Watcher that turns raw watch events into typed entities
// and handler callbacks.
//
// # Architecture
//
//   - Descriptor: the per-kind configuration value (kind, API group prefix, CRD flag,
//     namespace scope)
//   - Entity: the typed projection of a watched resource; only the name is mandatory
//   - Handler: user callbacks (OnAdd, OnDelete and the optional Modifier, Initializer,
//     Supporter and Reconciler interfaces)
//   - Watcher: one live subscription with the dispatch state machine
//     Unstarted -> Subscribing -> Active <-> Reconnecting, and Closed as terminal state
//   - Gate: the one-way latch NotReady -> Reconciled -> Closed that withholds dispatch
//     until the first full reconciliation has established a baseline
//
// # Event Processing
//
// Every event goes through the same pipeline:
//
//	raw object -> IsSupported -> convert -> namespace resolution -> gate -> callback
//
// Conversion failures, callback errors and callback panics are logged and contained;
// the Watcher keeps processing subsequent events.
//
// # Recovery
//
// When the result channel of a subscription closes while the Watcher is still
// running, one resubscription is attempted immediately. Failing Watch calls are
// retried without limit, spaced by the ResubscribePolicy backoff. Closing the
// Watcher swaps the subscription handle with a closed sentinel so no later
// resubscription can install a new stream.
//
// Example usage:
//
//	op := operator.New(operator.Options[*v1.Cluster]{
//	    Descriptor: desc,
//	    Handler:    handler,
//	    Convert:    convert.FromObject[v1.Cluster],
//	}, rt)
//	if res := <-op.Start(ctx); res.Err != nil && !res.Skipped {
//	    return fmt.Errorf("failed to start %s: %w", op.Name(), res.Err)
//	}
//	defer op.Stop()
package operator
