// Package relay provides the client side of the burrow tunnel: the
// persistent outbound connection to the relay server and the wire types
// shared by everything that touches relayed traffic.
//
// The client establishes an outbound WebSocket connection to the relay,
// authenticates with a token, and receives incoming HTTP requests which it
// dispatches to a RequestHandler. Responses travel back over the same
// connection, correlated by request ID.
//
// Headers cross the wire as ordered name/value pairs (HeaderPair) rather
// than maps, so duplicate header names and their order survive both
// directions. Pairs and Header convert between that representation and
// net/http's header collection.
//
// Example usage:
//
//	cfg := relay.DefaultConfig().
//	    WithToken("your-token").
//	    WithTunnel("my-service")
//
//	client, err := relay.NewClient(cfg, handler)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// An alternative QUIC transport with the same handler contract lives in
// the quic subpackage.
package relay
