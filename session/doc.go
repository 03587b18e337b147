// Package session establishes sessions with remote tool providers.
//
// A provider is first probed for reachability at the network level,
// then the protocol handshake is performed. Both stages are retried
// with a fixed delay and can be cancelled with the context.
package session
