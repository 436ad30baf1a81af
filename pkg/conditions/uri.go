package conditions

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

const uriPrefix = "ni:///sha-256;"

// URI renders the named-information form of a condition:
//
//	ni:///sha-256;<fingerprint>?fpt=<type>&cost=<cost>[&subtypes=<a,b>]
//
// subtypes is present for compound kinds with descendants.
func URI(c Condition) string {
	t := c.Type()
	var sb strings.Builder
	sb.WriteString(uriPrefix)
	sb.WriteString(base64.RawURLEncoding.EncodeToString(c.Fingerprint()))
	sb.WriteString("?fpt=")
	sb.WriteString(t.Name)
	sb.WriteString("&cost=")
	sb.WriteString(strconv.FormatUint(c.Cost(), 10))
	if st := publicSubtypes(c); t.compound && st != 0 {
		sb.WriteString("&subtypes=")
		sb.WriteString(strings.Join(st.Names(), ","))
	}
	return sb.String()
}

// ParseURI reverses URI into a bare commitment.
func ParseURI(uri string) (*Anon, error) {
	rest, ok := strings.CutPrefix(uri, uriPrefix)
	if !ok {
		return nil, newError(ErrMalformedCondition, "condition URI must start with %q", uriPrefix)
	}
	encoded, rawQuery, ok := strings.Cut(rest, "?")
	if !ok {
		return nil, newError(ErrMalformedCondition, "condition URI has no query")
	}
	fingerprint, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(fingerprint) != sha256.Size {
		return nil, newError(ErrMalformedCondition, "invalid fingerprint in condition URI")
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, newError(ErrMalformedCondition, "invalid condition URI query: %v", err)
	}
	t, err := LookupName(query.Get("fpt"))
	if err != nil {
		return nil, newError(ErrMalformedCondition, "%s", err.Error())
	}
	cost, err := strconv.ParseUint(query.Get("cost"), 10, 63)
	if err != nil {
		return nil, newError(ErrMalformedCondition, "invalid cost in condition URI")
	}
	var subtypes TypeMask
	if raw := query.Get("subtypes"); raw != "" {
		subtypes, err = MaskOf(strings.Split(raw, ",")...)
		if err != nil {
			return nil, newError(ErrMalformedCondition, "%s", err.Error())
		}
	}
	return NewAnon(t, fingerprint, cost, subtypes), nil
}
