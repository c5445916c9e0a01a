package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uplo-tech/encoding"
)

// pipeDialer returns a Dialer that hands back one side of a net.Pipe,
// spawning handler on the other side for each dial. net.Pipe is synchronous
// and unbuffered, standing in for a real TCP connection in these tests.
func pipeDialer(t *testing.T, handler func(conn net.Conn)) Dialer {
	t.Helper()

	return func(_ context.Context) (net.Conn, error) {
		client, server := net.Pipe()
		go handler(server)

		return client, nil
	}
}

func TestClient_PutFileData_Success(t *testing.T) {
	dial := pipeDialer(t, func(conn net.Conn) {
		defer conn.Close()

		id, err := ReadFrameID(conn)
		require.NoError(t, err)
		require.Equal(t, RPCPutFileData, id)

		var req PutFileDataRequest
		require.NoError(t, ReadPayload(conn, &req))
		require.Equal(t, "hello.txt", req.Path)
		require.Equal(t, []byte("hi"), req.Data)

		resp := PutAckResponse{VC: []VCEntry{{Peer: "p2", Counter: 1}}}
		require.NoError(t, encoding.WriteObject(conn, resp))
	})

	c := NewClient("sync1", dial, 2*time.Second)

	remoteVC, err := c.PutFileData(context.Background(), "hello.txt", []byte("hi"), map[string]uint64{"p1": 1})
	require.NoError(t, err)
	require.Equal(t, uint64(1), remoteVC["p2"])
}

func TestClient_PutFileChunks_MissingIsNotAnError(t *testing.T) {
	dial := pipeDialer(t, func(conn net.Conn) {
		defer conn.Close()

		_, err := ReadFrameID(conn)
		require.NoError(t, err)

		var req PutFileChunksRequest
		require.NoError(t, ReadPayload(conn, &req))

		resp := FileChunksAckResponse{Error: FormatMissingChunksError([]string{"h1", "h2"})}
		require.NoError(t, encoding.WriteObject(conn, resp))
	})

	c := NewClient("sync1", dial, 2*time.Second)

	ack, missing, _, err := c.PutFileChunks(context.Background(), "big.bin", []string{"h1", "h2", "h3"}, nil)
	require.NoError(t, err)
	require.False(t, ack)
	require.Equal(t, []string{"h1", "h2"}, missing)
}

func TestClient_GetChunkData_ServerError(t *testing.T) {
	dial := pipeDialer(t, func(conn net.Conn) {
		defer conn.Close()

		_, err := ReadFrameID(conn)
		require.NoError(t, err)

		var req GetChunkDataRequest
		require.NoError(t, ReadPayload(conn, &req))

		resp := ChunkDataResponse{Error: "block not found"}
		require.NoError(t, encoding.WriteObject(conn, resp))
	})

	c := NewClient("sync1", dial, 2*time.Second)

	_, err := c.GetChunkData(context.Background(), "deadbeef")
	require.Error(t, err)
}
