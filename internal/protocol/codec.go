package protocol

import (
	"fmt"
	"io"

	"github.com/uplo-tech/encoding"
)

// MaxFrameSize bounds a single decoded frame, large enough for one
// full-transfer payload up to config.Tunables.OOMGuardThreshold but not
// unbounded, mirroring the teacher's own use of a fixed maxLen per
// encoding.ReadObject/NewDecoder call rather than encoding.DefaultAllocLimit
// everywhere (negotiate.go passes explicit limits like 2048, 16e3 per
// message kind rather than one global ceiling).
const MaxFrameSize = 200 * 1024 * 1024

// WriteFrame writes id followed by payload as two length-prefixed objects,
// grounded on negotiate.go's `encoding.WriteObject(conn, rpc)` then
// `encoding.WriteObject(conn, payload)` two-step send.
func WriteFrame(w io.Writer, id RPCID, payload any) error {
	if err := encoding.WriteObject(w, id); err != nil {
		return fmt.Errorf("protocol: writing RPC id: %w", err)
	}

	if err := encoding.WriteObject(w, payload); err != nil {
		return fmt.Errorf("protocol: writing payload for %s: %w", id, err)
	}

	return nil
}

// ReadFrameID reads the RPC id half of a frame, letting a server dispatch
// before decoding the id-specific payload shape (rpcloop.go's
// `modules.ReadRPCID` then switch-on-id shape, generalized from a fixed
// Specifier to this package's string RPCID).
func ReadFrameID(r io.Reader) (RPCID, error) {
	var id RPCID
	if err := encoding.ReadObject(r, &id, MaxFrameSize); err != nil {
		return "", fmt.Errorf("protocol: reading RPC id: %w", err)
	}

	return id, nil
}

// ReadPayload decodes the payload half of a frame into dst, which must be a
// pointer to the response/request type matching the already-read RPCID.
func ReadPayload(r io.Reader, dst any) error {
	if err := encoding.ReadObject(r, dst, MaxFrameSize); err != nil {
		return fmt.Errorf("protocol: reading payload: %w", err)
	}

	return nil
}

// WriteResponse writes resp as a single length-prefixed object with no RPCID
// prefix, the server-side half of Client.call's one-frame-per-connection
// exchange: the caller already knows which response shape to expect from the
// RPCID it sent, so the response carries no id of its own.
func WriteResponse(w io.Writer, resp any) error {
	if err := encoding.WriteObject(w, resp); err != nil {
		return fmt.Errorf("protocol: writing response: %w", err)
	}

	return nil
}
