package grpcadapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ClientAdapter implements sync.Adapter over one gRPC connection to a
// remote peer's ChangeSetService, the way the teacher's pkg/client.Client
// wraps one grpc.ClientConn behind a typed method set.
type ClientAdapter struct {
	name string
	conn *grpc.ClientConn
}

// Dial opens a ClientAdapter against addr. tlsCreds is nil for a plaintext
// connection (development / same-host sync); production deployments
// should pass credentials.NewTLS, mirroring the teacher's mTLS-by-default
// client construction.
func Dial(name, addr string, tlsCreds credentials.TransportCredentials) (*ClientAdapter, error) {
	creds := insecure.NewCredentials()
	if tlsCreds != nil {
		creds = tlsCreds
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, qerr.Wrap(qerr.SyncTransportError, "grpcadapter.Dial", err)
	}
	return &ClientAdapter{name: name, conn: conn}, nil
}

// Name implements sync.Adapter.
func (a *ClientAdapter) Name() string { return a.name }

// Close releases the underlying connection.
func (a *ClientAdapter) Close() error { return a.conn.Close() }

// Push implements sync.Adapter: it JSON-encodes every record via
// sync.EncodeRecord, batches them into one []byte payload, and invokes
// the remote Push RPC directly via conn.Invoke rather than a generated
// client stub — the request/response types are the well-known
// wrapperspb/emptypb messages, so no generated stub is needed.
func (a *ClientAdapter) Push(records []sync.Record) error {
	batch := make([][]byte, 0, len(records))
	for _, r := range records {
		data, err := sync.EncodeRecord(r)
		if err != nil {
			return qerr.Wrap(qerr.ValidationFailed, "grpcadapter.ClientAdapter.Push", err)
		}
		batch = append(batch, data)
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return qerr.Wrap(qerr.ValidationFailed, "grpcadapter.ClientAdapter.Push", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := wrapperspb.Bytes(payload)
	resp := new(emptypb.Empty)
	if err := a.conn.Invoke(ctx, pushFullMethod, req, resp); err != nil {
		return qerr.Wrap(qerr.SyncTransportError, "grpcadapter.ClientAdapter.Push", err)
	}
	return nil
}
