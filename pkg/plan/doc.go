// Package plan drives what-if capacity plans against a remote analysis
// server. A Spec collects abstract setting entries through named mutation
// methods; rendering compiles those entries into the version-specific
// scenario wire DTO the server expects. A Plan wraps a Spec and a Service
// handle, creates the remote scenario and market, and supervises the
// asynchronous run to completion under a bounded retry envelope.
package plan
