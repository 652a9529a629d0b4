// Package arm is the HTTP client for management-plane resources.
//
// Client implements engine.Poller: Poll issues one GET of a resource ID and
// maps the response to an ir.Snapshot or an *engine.FetchError. Put and
// Delete issue the mutating requests behind "resource create" and
// "resource delete".
//
// Requests go through an azcore pipeline, which contributes request IDs,
// telemetry headers, transport retries and, when a credential is
// configured, bearer-token authentication.
package arm
