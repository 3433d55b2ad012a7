// Package httputil holds the shared JSON response and request helpers
// used by the API handlers, so every endpoint emits the same envelope
// for data and for errors.
package httputil
