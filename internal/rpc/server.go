// Package rpc exposes the engine's inbound request surface: one typed
// handler per request shape, plus thin NATS glue mapping one subject to each
// method. The handlers are pure methods over the engine so they are testable
// without a transport.
package rpc

import (
	"context"
	"errors"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Engine is the orchestrator surface the RPC layer drives.
type Engine interface {
	Start(ctx context.Context, payload schemas.ListingPayload) error
	Resume(ctx context.Context, fromStep schemas.StepID, payload schemas.ListingPayload) error
	Status(ctx context.Context) schemas.StatusResponse
	Ready(ctx context.Context) (schemas.CheckReadyResponse, error)
}

// Handlers implements the four request methods.
type Handlers struct {
	engine Engine
	log    *zap.Logger
}

func NewHandlers(engine Engine, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{engine: engine, log: log.Named("rpc")}
}

// StartFill runs the full posting sequence. Idempotent: a duplicate request
// while a run was already attempted acknowledges success without starting a
// second run.
func (h *Handlers) StartFill(ctx context.Context, req schemas.StartFillRequest) schemas.StartFillResponse {
	err := h.engine.Start(ctx, req.Data)
	switch {
	case err == nil:
		return schemas.StartFillResponse{Success: true}
	case errors.Is(err, workflow.ErrAlreadyAttempted):
		return schemas.StartFillResponse{Success: true, Message: "already attempted"}
	default:
		return schemas.StartFillResponse{Success: false, Error: err.Error()}
	}
}

// CheckReady reports that the engine is injected and responsive.
func (h *Handlers) CheckReady(ctx context.Context) schemas.CheckReadyResponse {
	resp, err := h.engine.Ready(ctx)
	if err != nil {
		h.log.Warn("Readiness check failed.", zap.Error(err))
		return schemas.CheckReadyResponse{Ready: false}
	}
	return resp
}

// GetStatus returns the diagnostic run snapshot.
func (h *Handlers) GetStatus(ctx context.Context) schemas.StatusResponse {
	return h.engine.Status(ctx)
}

// Resume continues a run from a persisted mid-flow step.
func (h *Handlers) Resume(ctx context.Context, req schemas.ResumeRequest) schemas.ResumeResponse {
	if err := h.engine.Resume(ctx, req.FromStep, req.Data); err != nil {
		return schemas.ResumeResponse{Success: false, Error: err.Error()}
	}
	return schemas.ResumeResponse{Success: true}
}

// Server binds the handlers to NATS subjects (<prefix>.rpc.<method>).
type Server struct {
	nc       *nats.Conn
	prefix   string
	handlers *Handlers
	log      *zap.Logger
	subs     []*nats.Subscription
}

func NewServer(nc *nats.Conn, prefix string, handlers *Handlers, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "postflow"
	}
	return &Server{nc: nc, prefix: prefix, handlers: handlers, log: log.Named("rpc.server")}
}

// Serve subscribes every method. Each request runs in its own goroutine so a
// long posting run does not stall the connection's dispatcher; the response
// is sent when the method returns.
func (s *Server) Serve(ctx context.Context) error {
	type binding struct {
		method string
		handle func(context.Context, *nats.Msg) (any, error)
	}
	bindings := []binding{
		{"start_fill", func(ctx context.Context, msg *nats.Msg) (any, error) {
			var req schemas.StartFillRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				return schemas.StartFillResponse{Success: false, Error: "malformed request: " + err.Error()}, nil
			}
			return s.handlers.StartFill(ctx, req), nil
		}},
		{"check_ready", func(ctx context.Context, _ *nats.Msg) (any, error) {
			return s.handlers.CheckReady(ctx), nil
		}},
		{"get_status", func(ctx context.Context, _ *nats.Msg) (any, error) {
			return s.handlers.GetStatus(ctx), nil
		}},
		{"resume", func(ctx context.Context, msg *nats.Msg) (any, error) {
			var req schemas.ResumeRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				return schemas.ResumeResponse{Success: false, Error: "malformed request: " + err.Error()}, nil
			}
			return s.handlers.Resume(ctx, req), nil
		}},
	}

	for _, b := range bindings {
		subject := s.prefix + ".rpc." + b.method
		sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
			go s.dispatch(ctx, msg, b.handle)
		})
		if err != nil {
			s.Close()
			return err
		}
		s.subs = append(s.subs, sub)
		s.log.Info("Serving RPC subject.", zap.String("subject", subject))
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, msg *nats.Msg, handle func(context.Context, *nats.Msg) (any, error)) {
	resp, err := handle(ctx, msg)
	if err != nil {
		s.log.Error("Handler failed.", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("Could not encode response.", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("Could not send response.", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Close drains the subscriptions.
func (s *Server) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}
