// Package postgres opens primary/replica connection pools behind a dbresolver
// and runs explicit schema migrations.
//
// The transaction package consumes a *Client through NewResolverConnector, so
// plans always begin their transactions on the primary.
package postgres
