// Package remote is the boundary to the document service that holds the
// authoritative copy of a user's data.
//
// Client is the narrow contract the syncer depends on. Implementations:
//
//   - RESTClient speaks HTTP JSON to a Handler
//   - Handler serves the REST routes over any Directory
//   - RedisStore keeps documents in redis
//   - Memory keeps documents in process
//
// Every failure is either ErrUnreachable (transport) or *RejectedError
// (the service answered and refused).
package remote
