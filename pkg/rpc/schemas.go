package rpc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Param schemas per method. Condition objects are checked by the
// conditions package, which knows each kind's fields.
const (
	base64Pattern = `^[A-Za-z0-9+/_-]*={0,2}$`
	maxListLimit  = "500"

	binSchema = `{
		"type": "object",
		"required": ["bin"],
		"properties": {"bin": {"type": "string", "pattern": "` + base64Pattern + `"}}
	}`

	fulfillmentSchema = `{
		"type": "object",
		"required": ["fulfillment"],
		"properties": {"fulfillment": {"type": "string", "pattern": "` + base64Pattern + `"}}
	}`

	verifySchema = `{
		"type": "object",
		"required": ["fulfillment", "message"],
		"properties": {
			"fulfillment": {"type": "string", "pattern": "` + base64Pattern + `"},
			"message":     {"type": "string", "pattern": "` + base64Pattern + `"},
			"condition":   {"type": "string", "pattern": "` + base64Pattern + `"},
			"uri":         {"type": "string"}
		}
	}`

	signSchema = `{
		"type": "object",
		"required": ["privateKey", "message"],
		"properties": {
			"privateKey": {"type": "string", "pattern": "` + base64Pattern + `"},
			"message":    {"type": "string", "pattern": "` + base64Pattern + `"}
		}
	}`

	listSchema = `{
		"type": "object",
		"properties": {"limit": {"type": "integer", "minimum": 1, "maximum": ` + maxListLimit + `}}
	}`

	uriSchema = `{
		"type": "object",
		"required": ["uri"],
		"properties": {"uri": {"type": "string", "pattern": "^ni:///sha-256;"}}
	}`
)

func compileSchema(method, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://cryptoconditions.schemas.local/rpc/%s.schema.json", method)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("rpc schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("rpc schema compile failed: %w", err)
	}
	return compiled, nil
}

var missingProperty = regexp.MustCompile(`missing properties?: '([^']+)'`)

// paramError turns a schema failure into the message callers see, naming
// the offending field the way hand-written checks do.
func paramError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")

	switch {
	case strings.HasSuffix(leaf.KeywordLocation, "/required"):
		if m := missingProperty.FindStringSubmatch(leaf.Message); m != nil {
			return m[1] + " must be a string"
		}
	case strings.HasSuffix(leaf.KeywordLocation, "/type") && field == "limit":
		return "limit must be an integer"
	case strings.HasSuffix(leaf.KeywordLocation, "/minimum") || strings.HasSuffix(leaf.KeywordLocation, "/maximum"):
		return field + " must be between 1 and " + maxListLimit
	case strings.HasSuffix(leaf.KeywordLocation, "/type") && field != "":
		return field + " must be a string"
	case strings.HasSuffix(leaf.KeywordLocation, "/pattern") && field == "uri":
		return "uri is not a condition URI"
	case strings.HasSuffix(leaf.KeywordLocation, "/pattern") && field != "":
		return field + " is not valid b64"
	}
	return "invalid params: " + leaf.Message
}
