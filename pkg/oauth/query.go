package oauth

import (
	"net/url"
	"strings"
)

// Param is a single key-value pair of a query string or an
// application/x-www-form-urlencoded request body.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of key-value pairs. Order matters: the
// encoded output preserves it, which keeps authorization URIs and token
// request bodies deterministic. Go maps iterate in random order, so a
// slice is used instead.
type Params []Param

// Get returns the value of the first pair with the given key, or "".
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// EncodeQuery percent-encodes the given pairs using the
// application/x-www-form-urlencoded rule set and joins them with "&".
// Pairs with an empty value are emitted as the key alone, without "=".
//
// The result can be appended to a URI or used verbatim as a form body.
func EncodeQuery(params Params) string {
	var sb strings.Builder
	for i, kv := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		if kv.Value != "" {
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(kv.Value))
		}
	}
	return sb.String()
}

// ParseQuery splits a raw query string into key-value pairs. Empty
// segments are dropped, a segment without "=" maps the key to "", and
// keys and values are percent-decoded as UTF-8. Behaviour for duplicate
// keys is last-wins; the redirect listener never needs more.
func ParseQuery(rawQuery string) map[string]string {
	params := make(map[string]string)
	for _, segment := range strings.Split(rawQuery, "&") {
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			params[decodeComponent(key)] = ""
			continue
		}
		params[decodeComponent(key)] = decodeComponent(value)
	}
	return params
}

// decodeComponent percent-decodes s, falling back to the raw input when
// the encoding is invalid. The listener replies 400 on bad state either
// way, so lenient decoding loses nothing.
func decodeComponent(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
