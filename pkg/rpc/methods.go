package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/observability"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/store"
)

func (s *Server) encodeCondition(ctx context.Context, params map[string]any) (Result, error) {
	c, err := conditions.ConditionFromJSON(params)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if _, err := s.store.Put(ctx, c); err != nil {
			s.logger.ErrorContext(ctx, "store condition", "uri", conditions.URI(c), "error", err)
			return nil, fail("failed to store condition")
		}
	}
	observability.SetSpanAttributes(ctx, observability.ConditionAttributes(c.Type().Name, c.Cost())...)
	return conditions.ConditionToPublishableJSON(c), nil
}

func (s *Server) decodeCondition(_ context.Context, params map[string]any) (Result, error) {
	bin, err := base64Param(params, "bin")
	if err != nil {
		return nil, err
	}
	c, err := conditions.DecodeCondition(bin)
	if err != nil {
		return nil, &Error{Message: "Invalid condition payload", Err: err}
	}
	out := conditions.ConditionToPublishableJSON(c)
	out["condition"] = conditions.ConditionToJSON(c)
	return out, nil
}

func (s *Server) encodeFulfillment(_ context.Context, params map[string]any) (Result, error) {
	c, err := conditions.ConditionFromJSON(params)
	if err != nil {
		return nil, err
	}
	ff, err := conditions.EncodeFulfillment(c)
	if err != nil {
		return nil, err
	}
	return Result{"fulfillment": conditions.EncodeBase64(ff)}, nil
}

func (s *Server) decodeFulfillment(_ context.Context, params map[string]any) (Result, error) {
	bin, err := base64Param(params, "fulfillment")
	if err != nil {
		return nil, err
	}
	c, err := conditions.DecodeFulfillment(bin)
	if err != nil {
		return nil, &Error{Message: "Invalid fulfillment payload", Err: err}
	}
	return conditions.ConditionToPublishableJSON(c), nil
}

func (s *Server) verifyFulfillment(ctx context.Context, params map[string]any) (Result, error) {
	ff, err := base64Param(params, "fulfillment")
	if err != nil {
		return nil, err
	}
	msg, err := base64Param(params, "message")
	if err != nil {
		return nil, err
	}
	cond, err := s.targetCondition(params)
	if err != nil {
		return nil, err
	}

	valid, err := s.verify.Verify(ff, msg, cond)
	if err != nil {
		if errors.Is(err, conditions.ErrMalformedFulfillment) || errors.Is(err, conditions.ErrUnknownType) {
			return nil, &Error{Message: "Invalid fulfillment payload", Err: err}
		}
		return nil, err
	}
	s.telemetry.RecordVerdict(ctx, valid)
	return Result{"valid": valid}, nil
}

// targetCondition returns the condition binary to verify against, given
// either as "condition" or as a condition URI.
func (s *Server) targetCondition(params map[string]any) ([]byte, error) {
	if _, ok := params["condition"]; ok || params["uri"] == nil {
		return base64Param(params, "condition")
	}
	uri, _ := params["uri"].(string)
	anon, err := conditions.ParseURI(uri)
	if err != nil {
		return nil, &Error{Message: "Invalid condition payload", Err: err}
	}
	return conditions.EncodeCondition(anon), nil
}

func (s *Server) signTreeEd25519(ctx context.Context, params map[string]any) (Result, error) {
	c, err := conditions.ConditionFromJSON(params["condition"])
	if err != nil {
		return nil, err
	}
	key, err := base64Param(params, "privateKey")
	if err != nil {
		return nil, err
	}
	msg, err := base64Param(params, "message")
	if err != nil {
		return nil, err
	}
	priv, err := privateKey(key)
	if err != nil {
		return nil, err
	}

	n, err := conditions.SignTreeEd25519(c, priv, msg)
	if err != nil {
		return nil, err
	}
	s.telemetry.RecordSigned(ctx, n)
	return Result{
		"num_signed": n,
		"condition":  conditions.ConditionToJSON(c),
	}, nil
}

// privateKey accepts a 32-byte seed or a 64-byte seed‖public key.
func privateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
		if !bytes.Equal(priv, key) {
			return nil, fail("privateKey public half does not match its seed")
		}
		return priv, nil
	default:
		return nil, fail("privateKey must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

func (s *Server) getCondition(ctx context.Context, params map[string]any) (Result, error) {
	if s.store == nil {
		return nil, fail("condition store is not configured")
	}
	uri, _ := params["uri"].(string)
	rec, err := s.store.Get(ctx, uri)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Message: "unknown condition uri", Err: err}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "read condition", "uri", uri, "error", err)
		return nil, fail("failed to read condition store")
	}
	return Result{
		"uri":       rec.URI,
		"bin":       conditions.EncodeBase64(rec.Bin),
		"condition": conditions.ConditionToJSON(rec.Condition),
	}, nil
}

const defaultListLimit = 50

func (s *Server) listConditions(ctx context.Context, params map[string]any) (Result, error) {
	if s.store == nil {
		return nil, fail("condition store is not configured")
	}
	limit := defaultListLimit
	switch v := params["limit"].(type) {
	case float64:
		limit = int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			limit = int(n)
		}
	}

	records, err := s.store.List(ctx, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "list conditions", "limit", limit, "error", err)
		return nil, fail("failed to read condition store")
	}
	list := make([]any, 0, len(records))
	for _, rec := range records {
		list = append(list, map[string]any{
			"uri":  rec.URI,
			"type": rec.Type,
			"cost": rec.Cost,
		})
	}
	return Result{"conditions": list}, nil
}

func (s *Server) listMethods(context.Context, map[string]any) (Result, error) {
	list := make([]any, 0, len(s.methods))
	for _, m := range s.methods {
		list = append(list, map[string]any{"name": m.Name, "description": m.Description})
	}
	return Result{"methods": list}, nil
}

func base64Param(params map[string]any, key string) ([]byte, error) {
	v, ok := params[key].(string)
	if !ok {
		return nil, fail("%s must be a string", key)
	}
	b, err := conditions.DecodeBase64(v)
	if err != nil {
		return nil, fail("%s is not valid b64", key)
	}
	return b, nil
}
