package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/store"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	srv, err := NewServer(opts...)
	require.NoError(t, err)
	return srv
}

// call sends a request through the same JSON round trip a transport does.
func call(t *testing.T, srv *Server, method string, params any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"method": method, "params": params})
	require.NoError(t, err)
	return roundTrip(t, srv.Handle(context.Background(), raw))
}

func roundTrip(t *testing.T, res Result) map[string]any {
	t.Helper()
	out, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	return decoded
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func seed(n byte) []byte { return bytes.Repeat([]byte{n}, ed25519.SeedSize) }

func pubKey(n byte) []byte {
	return ed25519.NewKeyFromSeed(seed(n)).Public().(ed25519.PublicKey)
}

func TestHandle_EnvelopeErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	cases := []struct{ raw, want string }{
		{`{not json`, "Error parsing JSON request"},
		{`{"params": {}}`, "malformed method"},
		{`{"method": 7, "params": {}}`, "malformed method"},
		{`{"method": "listMethods"}`, "params is not an object"},
		{`{"method": "listMethods", "params": []}`, "params is not an object"},
		{`{"method": "nope", "params": {}}`, "invalid method"},
	}
	for _, tc := range cases {
		assert.Equal(t, Result{"error": tc.want}, srv.Handle(ctx, []byte(tc.raw)), tc.raw)
	}
}

func TestEncodeCondition_PreimageScenario(t *testing.T) {
	srv := newTestServer(t)

	enc := call(t, srv, "encodeCondition", map[string]any{
		"type":     "preimage-sha-256",
		"preimage": b64([]byte("sg777")),
	})
	require.NotContains(t, enc, "error")
	assert.Contains(t, enc["uri"], "fpt=preimage-sha-256&cost=5")

	dec := call(t, srv, "decodeCondition", map[string]any{"bin": enc["bin"]})
	require.NotContains(t, dec, "error")
	assert.Equal(t, enc["uri"], dec["uri"])

	cond := dec["condition"].(map[string]any)
	sum := sha256.Sum256([]byte("sg777"))
	assert.Equal(t, "preimage-sha-256", cond["type"])
	assert.Equal(t, conditions.EncodeBase64(sum[:]), cond["fingerprint"])
	assert.Equal(t, 5.0, cond["cost"])
}

func TestEncodeCondition_MissingType(t *testing.T) {
	res := call(t, newTestServer(t), "encodeCondition", map[string]any{})
	assert.Equal(t, map[string]any{"error": `"type" must be a string`}, res)
}

func TestDecodeCondition_InvalidPayload(t *testing.T) {
	srv := newTestServer(t)

	res := call(t, srv, "decodeCondition", map[string]any{"bin": b64([]byte{0xa0, 0x01})})
	assert.Equal(t, "Invalid condition payload", res["error"])

	res = call(t, srv, "decodeCondition", map[string]any{})
	assert.Equal(t, "bin must be a string", res["error"])

	res = call(t, srv, "decodeCondition", map[string]any{"bin": "$$$"})
	assert.Equal(t, "bin is not valid b64", res["error"])
}

func TestFulfillment_EncodeDecodeVerify(t *testing.T) {
	srv := newTestServer(t)
	params := map[string]any{"type": "preimage-sha-256", "preimage": b64([]byte("sg777"))}

	enc := call(t, srv, "encodeCondition", params)
	ff := call(t, srv, "encodeFulfillment", params)
	require.NotContains(t, ff, "error")

	dec := call(t, srv, "decodeFulfillment", map[string]any{"fulfillment": ff["fulfillment"]})
	assert.Equal(t, enc["uri"], dec["uri"])
	assert.Equal(t, enc["bin"], dec["bin"])

	ok := call(t, srv, "verifyFulfillment", map[string]any{
		"fulfillment": ff["fulfillment"],
		"message":     "",
		"condition":   enc["bin"],
	})
	assert.Equal(t, map[string]any{"valid": true}, ok)

	other := call(t, srv, "encodeCondition", map[string]any{"type": "preimage-sha-256", "preimage": b64([]byte("sg778"))})
	bad := call(t, srv, "verifyFulfillment", map[string]any{
		"fulfillment": ff["fulfillment"],
		"message":     "",
		"condition":   other["bin"],
	})
	assert.Equal(t, map[string]any{"valid": false}, bad)

	byURI := call(t, srv, "verifyFulfillment", map[string]any{
		"fulfillment": ff["fulfillment"],
		"message":     "",
		"uri":         enc["uri"],
	})
	assert.Equal(t, map[string]any{"valid": true}, byURI)
}

func TestVerifyFulfillment_Errors(t *testing.T) {
	srv := newTestServer(t)
	cond := conditions.EncodeBase64(conditions.EncodeCondition(conditions.NewPreimage(nil)))

	res := call(t, srv, "verifyFulfillment", map[string]any{
		"fulfillment": b64([]byte{0x01}),
		"message":     "",
		"condition":   cond,
	})
	assert.Equal(t, "Invalid fulfillment payload", res["error"])

	res = call(t, srv, "verifyFulfillment", map[string]any{"fulfillment": "", "message": ""})
	assert.Equal(t, "condition must be a string", res["error"])

	res = call(t, srv, "verifyFulfillment", map[string]any{"fulfillment": "not base64!", "message": "", "condition": cond})
	assert.Equal(t, "fulfillment is not valid b64", res["error"])

	res = call(t, srv, "verifyFulfillment", map[string]any{"fulfillment": "", "message": "", "uri": "ni:///sha-256;bad"})
	assert.Equal(t, "Invalid condition payload", res["error"])
}

func TestVerifyFulfillment_CostLimit(t *testing.T) {
	srv := newTestServer(t, WithVerifyOptions(conditions.VerifyOptions{MaxCost: 1000}))
	params := map[string]any{
		"type":      "ed25519-sha-256",
		"publicKey": b64(pubKey(1)),
		"signature": b64(ed25519.Sign(ed25519.NewKeyFromSeed(seed(1)), nil)),
	}
	enc := call(t, srv, "encodeCondition", params)
	ff := call(t, srv, "encodeFulfillment", params)

	res := call(t, srv, "verifyFulfillment", map[string]any{
		"fulfillment": ff["fulfillment"],
		"message":     "",
		"condition":   enc["bin"],
	})
	assert.Equal(t, "condition cost 131072 exceeds limit 1000", res["error"])
}

func TestEncodeFulfillment_Unfulfilled(t *testing.T) {
	res := call(t, newTestServer(t), "encodeFulfillment", map[string]any{
		"type":      "ed25519-sha-256",
		"publicKey": b64(pubKey(1)),
	})
	assert.Equal(t, "ed25519-sha-256 condition is not fulfilled", res["error"])
}

func TestSignTreeEd25519_TwoOfThree(t *testing.T) {
	srv := newTestServer(t)
	msg := b64([]byte("release"))
	leaf := func(n byte) map[string]any {
		return map[string]any{"type": "ed25519-sha-256", "publicKey": b64(pubKey(n))}
	}
	tree := map[string]any{
		"type":            "threshold-sha-256",
		"threshold":       2,
		"subfulfillments": []any{leaf(1), leaf(2), leaf(3)},
	}
	enc := call(t, srv, "encodeCondition", tree)

	first := call(t, srv, "signTreeEd25519", map[string]any{"condition": tree, "privateKey": b64(seed(1)), "message": msg})
	require.Equal(t, 1.0, first["num_signed"])

	// One signature is not enough to fulfill 2-of-3.
	res := call(t, srv, "encodeFulfillment", first["condition"])
	assert.Contains(t, res["error"], "not fulfilled")

	// A 64-byte private key is accepted as well.
	full := ed25519.NewKeyFromSeed(seed(3))
	second := call(t, srv, "signTreeEd25519", map[string]any{"condition": first["condition"], "privateKey": b64(full), "message": msg})
	require.Equal(t, 1.0, second["num_signed"])

	ff := call(t, srv, "encodeFulfillment", second["condition"])
	require.NotContains(t, ff, "error")
	verdict := call(t, srv, "verifyFulfillment", map[string]any{"fulfillment": ff["fulfillment"], "message": msg, "condition": enc["bin"]})
	assert.Equal(t, map[string]any{"valid": true}, verdict)

	// Signing again adds nothing.
	again := call(t, srv, "signTreeEd25519", map[string]any{"condition": second["condition"], "privateKey": b64(seed(3)), "message": msg})
	assert.Equal(t, 0.0, again["num_signed"])
}

func TestSignTreeEd25519_ParamErrors(t *testing.T) {
	srv := newTestServer(t)
	cond := map[string]any{"type": "ed25519-sha-256", "publicKey": b64(pubKey(1))}

	cases := []struct {
		params map[string]any
		want   string
	}{
		{map[string]any{"condition": cond, "message": ""}, "privateKey must be a string"},
		{map[string]any{"condition": cond, "privateKey": 1, "message": ""}, "privateKey must be a string"},
		{map[string]any{"condition": cond, "privateKey": b64(seed(1)), "message": false}, "message must be a string"},
		{map[string]any{"condition": cond, "privateKey": b64([]byte{1, 2, 3}), "message": ""}, "privateKey must be 32 or 64 bytes"},
		{map[string]any{"privateKey": b64(seed(1)), "message": ""}, "Condition params must be an object"},
	}
	for _, tc := range cases {
		res := call(t, srv, "signTreeEd25519", tc.params)
		assert.Equal(t, tc.want, res["error"], "params %v", tc.params)
	}

	mismatched := append(append([]byte{}, seed(1)...), pubKey(2)...)
	res := call(t, srv, "signTreeEd25519", map[string]any{"condition": cond, "privateKey": b64(mismatched), "message": ""})
	assert.Equal(t, "privateKey public half does not match its seed", res["error"])
}

func TestListMethods(t *testing.T) {
	res := call(t, newTestServer(t), "listMethods", map[string]any{})
	methods := res["methods"].([]any)

	var names []string
	for _, m := range methods {
		entry := m.(map[string]any)
		assert.NotEmpty(t, entry["description"])
		names = append(names, entry["name"].(string))
	}
	assert.Equal(t, []string{
		"encodeCondition", "decodeCondition", "encodeFulfillment", "decodeFulfillment",
		"verifyFulfillment", "signTreeEd25519", "getCondition", "listConditions", "listMethods",
	}, names)
}

func TestGetCondition(t *testing.T) {
	res := call(t, newTestServer(t), "getCondition", map[string]any{"uri": "ni:///sha-256;x"})
	assert.Equal(t, "condition store is not configured", res["error"])

	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	srv := newTestServer(t, WithStore(s))

	tree := map[string]any{
		"type":             "prefix-sha-256",
		"prefix":           b64([]byte("p")),
		"maxMessageLength": 10,
		"subfulfillment":   map[string]any{"type": "preimage-sha-256", "preimage": b64([]byte("secret"))},
	}
	enc := call(t, srv, "encodeCondition", tree)
	require.NotContains(t, enc, "error")

	got := call(t, srv, "getCondition", map[string]any{"uri": enc["uri"]})
	require.NotContains(t, got, "error")
	assert.Equal(t, enc["bin"], got["bin"])
	cond := got["condition"].(map[string]any)
	sub := cond["subfulfillment"].(map[string]any)
	assert.NotContains(t, sub, "preimage", "published structure hides the preimage")
	assert.Contains(t, sub, "fingerprint")

	missing := call(t, srv, "getCondition", map[string]any{"uri": "ni:///sha-256;47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU?fpt=preimage-sha-256&cost=0"})
	assert.Equal(t, "unknown condition uri", missing["error"])

	invalid := call(t, srv, "getCondition", map[string]any{"uri": "http://x"})
	assert.Equal(t, "uri is not a condition URI", invalid["error"])
}

func TestCall_DirectParams(t *testing.T) {
	srv := newTestServer(t)
	out, err := srv.Call(context.Background(), "encodeCondition", map[string]any{"type": "preimage-sha-256", "preimage": ""})
	require.NoError(t, err)
	assert.Contains(t, out["uri"], "cost=0")

	_, err = srv.Call(context.Background(), "missing", nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "invalid method", rpcErr.Message)
}

func TestListConditions(t *testing.T) {
	res := call(t, newTestServer(t), "listConditions", map[string]any{})
	assert.Equal(t, "condition store is not configured", res["error"])

	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	srv := newTestServer(t, WithStore(s))

	uris := map[string]bool{}
	for _, p := range []string{"a", "b", "c"} {
		enc := call(t, srv, "encodeCondition", map[string]any{"type": "preimage-sha-256", "preimage": b64([]byte(p))})
		require.NotContains(t, enc, "error")
		uris[enc["uri"].(string)] = true
	}

	all := call(t, srv, "listConditions", map[string]any{})
	require.NotContains(t, all, "error")
	listed := all["conditions"].([]any)
	require.Len(t, listed, 3)
	for _, item := range listed {
		entry := item.(map[string]any)
		assert.True(t, uris[entry["uri"].(string)])
		assert.Equal(t, "preimage-sha-256", entry["type"])
		assert.Equal(t, float64(1), entry["cost"])
	}

	two := call(t, srv, "listConditions", map[string]any{"limit": 2})
	assert.Len(t, two["conditions"], 2)

	zero := call(t, srv, "listConditions", map[string]any{"limit": 0})
	assert.Equal(t, "limit must be between 1 and 500", zero["error"])

	text := call(t, srv, "listConditions", map[string]any{"limit": "all"})
	assert.Equal(t, "limit must be an integer", text["error"])
}
