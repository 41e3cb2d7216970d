// Package app bootstraps an operatorkit process and manages its lifecycle.
//
// # Startup Sequence
//
//  1. Build the Kubernetes clients from the kubeconfig or in-cluster config
//  2. Detect the platform (Kubernetes or OpenShift) through API discovery
//  3. Create the shared CRD manager, metrics and bounded executor
//  4. Instantiate every registered, enabled kind once per watched namespace
//  5. Start all operators in parallel and wait for their watches
//  6. Schedule the periodic full reconciliation of each started operator
//  7. Serve metrics and notify systemd that the process is ready
//
// Operators that fail their integrity checks are skipped with a warning. Any
// other start failure, such as a rejected custom resource definition or a
// watch that cannot be established, stops every operator and makes Run
// return the error.
//
// # Shutdown
//
// Cancelling the context passed to Run stops the reconciliation timers and
// closes every watch. Callbacks already running are allowed to finish.
package app
