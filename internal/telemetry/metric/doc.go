// Package metric exports AuthMesh metrics to Prometheus.
//
// Registry implements service.Recorder for login, MFA and revocation
// outcomes and the httpserver Observer for request counts, latency and
// rate limiter rejections. Collector samples process state, such as the
// number of users with recorded MFA failures, at scrape time.
//
// Everything is served from /metrics when metrics.enabled is set.
package metric
