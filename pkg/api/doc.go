// Package api implements the REST client for the remote analysis service.
// It exposes the scenario and market resources the plan engine drives and
// classifies transport failures so the retry envelope can distinguish
// transient server errors from caller mistakes.
package api
