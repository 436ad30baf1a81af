// Package rpc maps JSON requests of the form {"method": name, "params": {}}
// onto the conditions engine. Every call yields either the method's result
// object or {"error": message}.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/observability"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/store"
)

// Result is a method's response object.
type Result = map[string]any

// Error is a failure reported to the caller as {"error": Message}.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func fail(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// failWith reports err's own message; conditions errors are written for
// end users.
func failWith(err error) *Error {
	return &Error{Message: err.Error(), Err: err}
}

type handlerFunc func(ctx context.Context, params map[string]any) (Result, error)

// Method is one entry of the method table.
type Method struct {
	Name        string
	Description string

	handler handlerFunc
	schema  *jsonschema.Schema
}

// Server dispatches RPC calls. It is safe for concurrent use.
type Server struct {
	methods []*Method
	byName  map[string]*Method

	store     store.ConditionStore
	verify    conditions.VerifyOptions
	telemetry *observability.Provider
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables getCondition and listConditions, and records conditions
// published through encodeCondition.
func WithStore(s store.ConditionStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithVerifyOptions bounds the fulfillments verifyFulfillment evaluates.
func WithVerifyOptions(o conditions.VerifyOptions) Option {
	return func(srv *Server) { srv.verify = o }
}

// WithTelemetry traces every call.
func WithTelemetry(p *observability.Provider) Option {
	return func(srv *Server) { srv.telemetry = p }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// NewServer builds the method table.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "rpc")

	table := []struct {
		name, description, schema string
		handler                   handlerFunc
	}{
		{"encodeCondition", "Encode a JSON condition to binary", "", s.encodeCondition},
		{"decodeCondition", "Decode a binary condition", binSchema, s.decodeCondition},
		{"encodeFulfillment", "Encode a JSON condition to a fulfillment", "", s.encodeFulfillment},
		{"decodeFulfillment", "Decode a binary fulfillment", fulfillmentSchema, s.decodeFulfillment},
		{"verifyFulfillment", "Verify a fulfillment", verifySchema, s.verifyFulfillment},
		{"signTreeEd25519", "Sign ed25519 condition nodes", signSchema, s.signTreeEd25519},
		{"getCondition", "Look up a published condition by URI", uriSchema, s.getCondition},
		{"listConditions", "List recently published conditions", listSchema, s.listConditions},
		{"listMethods", "List available methods", "", s.listMethods},
	}

	s.byName = make(map[string]*Method, len(table))
	for _, entry := range table {
		m := &Method{Name: entry.name, Description: entry.description, handler: entry.handler}
		if entry.schema != "" {
			compiled, err := compileSchema(entry.name, entry.schema)
			if err != nil {
				return nil, err
			}
			m.schema = compiled
		}
		s.methods = append(s.methods, m)
		s.byName[m.Name] = m
	}
	return s, nil
}

// Methods lists the method table in declaration order.
func (s *Server) Methods() []*Method {
	return s.methods
}

// Handle runs one raw JSON request. It never fails: malformed input yields
// an error envelope.
func (s *Server) Handle(ctx context.Context, raw []byte) Result {
	var req map[string]any
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResult("Error parsing JSON request")
	}
	method, ok := req["method"].(string)
	if !ok {
		return errorResult("malformed method")
	}
	params, ok := req["params"].(map[string]any)
	if !ok {
		return errorResult("params is not an object")
	}

	out, err := s.Call(ctx, method, params)
	if err != nil {
		return errorResult(err.Error())
	}
	return out
}

// Call invokes a method with already decoded params.
func (s *Server) Call(ctx context.Context, method string, params map[string]any) (Result, error) {
	m, ok := s.byName[method]
	if !ok {
		return nil, fail("invalid method")
	}

	start := time.Now()
	var finish func(error)
	if s.telemetry != nil {
		ctx, finish = s.telemetry.TrackOperation(ctx, "rpc."+method, observability.RPCOperation(method)...)
	}

	out, err := s.invoke(ctx, m, params)

	if finish != nil {
		finish(err)
	}
	if err != nil {
		s.logger.InfoContext(ctx, "rpc call failed",
			"method", method,
			"error", err.Error(),
			"duration", time.Since(start),
		)
		return nil, err
	}
	s.logger.DebugContext(ctx, "rpc call",
		"method", method,
		"duration", time.Since(start),
	)
	return out, nil
}

func (s *Server) invoke(ctx context.Context, m *Method, params map[string]any) (Result, error) {
	if m.schema != nil {
		if err := m.schema.Validate(params); err != nil {
			return nil, &Error{Message: paramError(err), Err: err}
		}
	}
	out, err := m.handler(ctx, params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, failWith(err)
	}
	return out, nil
}

func errorResult(msg string) Result {
	return Result{"error": msg}
}
