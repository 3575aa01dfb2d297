package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/callguard/pkg/commsutil"
	"github.com/morezero/callguard/pkg/dispatcher"
	"github.com/morezero/callguard/pkg/faults"
)

// handleMessage answers operation requests arriving on the COMMS subjects.
// Requests on a per-operation subject may omit op.
func (s *Server) handleMessage(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		data, err := commsutil.EncodePayload(s.reply(ctx, msg.Subject, msg.Data))
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Subject, err))
		}
	}
}

func (s *Server) reply(ctx context.Context, subject string, data []byte) *dispatcher.OperationResponse {
	var req dispatcher.OperationRequest
	if err := commsutil.DecodePayload(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		req.Endpoint = dispatcher.EndpointNATS
		return s.disp.Reject(&req, faults.NewSerializationError(err, "failed to decode request"))
	}
	req.Endpoint = dispatcher.EndpointNATS
	if req.Op == "" {
		req.Op = s.operationFor(subject)
	}

	// Per-request context with timeout; the dispatcher applies a shorter client timeout.
	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()
	return s.disp.Dispatch(reqCtx, &req)
}

// operationFor returns the operation whose subject is subject, or "".
func (s *Server) operationFor(subject string) string {
	for _, op := range s.disp.Operations() {
		if commsutil.BuildOperationSubject(op) == subject {
			return op
		}
	}
	return ""
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg != nil && s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout
	}
	return 25 * time.Second
}
