// Package connection is the authmesh-cli HTTP client.
//
// Requests carry the rate-limit bypass secret when one is configured.
// Responses use the server's envelope; ParseResponse unwraps "data" on
// success and returns an *APIError carrying the error code otherwise.
package connection
