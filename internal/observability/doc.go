// Package observability builds the process logger and holds the Prometheus
// collectors for request handling, identity resolution, authorization
// decisions and the session lifecycle.
package observability
