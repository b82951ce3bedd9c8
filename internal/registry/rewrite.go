package registry

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RewriteKind tags a RewriteRule variant.
type RewriteKind int

const (
	RewriteNone RewriteKind = iota
	RewritePrefixStrip
	RewriteCustom
)

func (k RewriteKind) String() string {
	switch k {
	case RewritePrefixStrip:
		return "prefix-strip"
	case RewriteCustom:
		return "custom"
	default:
		return "none"
	}
}

// RewriteFunc computes the upstream path from the full public path. Both are
// in escaped form.
type RewriteFunc func(path string, r *http.Request) string

// RewriteRule maps a public path onto the path sent upstream.
// The zero value forwards the path unchanged.
type RewriteRule struct {
	kind   RewriteKind
	prefix string
	fn     RewriteFunc
}

func NoRewrite() RewriteRule { return RewriteRule{} }

// PrefixStrip removes prefix from the start of the path.
func PrefixStrip(prefix string) RewriteRule {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return NoRewrite()
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return RewriteRule{kind: RewritePrefixStrip, prefix: prefix}
}

func Custom(fn RewriteFunc) RewriteRule {
	if fn == nil {
		return NoRewrite()
	}
	return RewriteRule{kind: RewriteCustom, fn: fn}
}

func (r RewriteRule) Kind() RewriteKind { return r.kind }

// Prefix is the stripped prefix for RewritePrefixStrip rules.
func (r RewriteRule) Prefix() string { return r.prefix }

// Apply returns the upstream path for path. The result always starts with "/".
func (r RewriteRule) Apply(path string, req *http.Request) string {
	var out string
	switch r.kind {
	case RewritePrefixStrip:
		switch {
		case path == r.prefix:
			out = "/"
		case strings.HasPrefix(path, r.prefix+"/"):
			out = path[len(r.prefix):]
		default:
			out = path
		}
	case RewriteCustom:
		out = r.fn(path, req)
	default:
		out = path
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

func (r RewriteRule) String() string {
	if r.kind == RewritePrefixStrip {
		return "strip " + r.prefix
	}
	return r.kind.String()
}

func (r RewriteRule) MarshalJSON() ([]byte, error) {
	v := struct {
		Kind   string `json:"kind"`
		Prefix string `json:"prefix,omitempty"`
	}{Kind: r.kind.String(), Prefix: r.prefix}
	return json.Marshal(v)
}
