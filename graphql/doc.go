// Package graphql dispatches GraphQL-shaped requests to registered operations.
//
// It is a thin transport, not a query engine: a request names one operation
// and supplies its variables as JSON. Every operation declares the capability
// it requires, and the Executor evaluates that capability against the caller's
// identity before the resolver runs. Responses use the standard
// {"data": ..., "errors": [...]} envelope with machine-readable codes in
// each error's extensions.
package graphql
