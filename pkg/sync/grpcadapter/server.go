package grpcadapter

import (
	"context"
	"encoding/json"

	"github.com/quilldb/quilldb/pkg/log"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/sync"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Receiver is called once per incoming record, after ReceiverServer has
// decoded it, so the embedding application can apply it to its own row
// store (or hand it to a conflict-aware merge layer) without this package
// needing to know about pkg/query or pkg/quilldb.
type Receiver func(ctx context.Context, record sync.Record) error

// ReceiverServer implements Server by decoding each pushed batch and
// invoking fn for every record in sequence order, the receiving half of
// the reference sync.Adapter.
type ReceiverServer struct {
	fn Receiver
}

// NewReceiverServer builds a ReceiverServer that calls fn for each
// incoming record.
func NewReceiverServer(fn Receiver) *ReceiverServer {
	return &ReceiverServer{fn: fn}
}

// Push implements Server.
func (s *ReceiverServer) Push(ctx context.Context, batch *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var encoded [][]byte
	if err := json.Unmarshal(batch.GetValue(), &encoded); err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "grpcadapter.ReceiverServer.Push", err)
	}
	for _, raw := range encoded {
		record, err := sync.DecodeRecord(raw)
		if err != nil {
			return nil, qerr.Wrap(qerr.ValidationFailed, "grpcadapter.ReceiverServer.Push", err)
		}
		log.WithTable(record.Table).Debug().
			Uint64("sequence", record.Sequence).
			Str("origin_device", record.OriginDevice).
			Msg("sync record received")
		if err := s.fn(ctx, record); err != nil {
			return nil, err
		}
	}
	return &emptypb.Empty{}, nil
}
