package peer

import (
	"context"
	"net"

	"github.com/foldersync/foldersync/internal/protocol"
)

// Transport is the narrow collaborator a hosting process supplies at
// construction so this engine never discovers peers or establishes
// connections itself (spec §1 "explicitly out of scope... treated as
// external collaborators via narrow interfaces"; spec §6 "a hosting
// process supplies {peerID, localPeerIdentity, transport} at
// construction"). Implementations own whatever discovery mechanism and
// wire security the host wants; this engine only ever asks for a
// connection to a peer it already knows the ID of.
type Transport interface {
	Dial(ctx context.Context, peerID string) (net.Conn, error)
}

// DialerFor adapts a Transport into the protocol.Dialer that
// protocol.NewClient needs, fixing peerID so callers never have to thread
// it through every RPC call.
func DialerFor(t Transport, peerID string) protocol.Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		return t.Dial(ctx, peerID)
	}
}
