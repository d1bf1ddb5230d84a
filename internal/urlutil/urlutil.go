package urlutil

import (
	"path"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a path.
// Absolute inputs are returned unchanged.
func BuildAbsolute(base, p string) string {
	base = normalizeBaseURL(base)
	p = strings.TrimSpace(p)
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if strings.HasPrefix(p, "//") {
		scheme := "https:"
		if strings.HasPrefix(base, "http://") {
			scheme = "http:"
		}
		return scheme + p
	}
	if strings.HasPrefix(p, "/") {
		return Origin(base) + p
	}
	return base + "/" + p
}

// Origin returns scheme://host of an absolute URL, or the input when it has no path.
func Origin(raw string) string {
	raw = normalizeBaseURL(raw)
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return raw
	}
	rest := raw[schemeEnd+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return raw[:schemeEnd+3+slash]
	}
	return raw
}

// JoinKey joins an object-store prefix and a relative path with forward
// slashes, dropping empty segments and backslashes.
func JoinKey(prefix string, rel ...string) string {
	parts := make([]string, 0, len(rel)+1)
	if p := strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"); p != "" {
		parts = append(parts, p)
	}
	for _, r := range rel {
		if r = strings.Trim(strings.ReplaceAll(r, "\\", "/"), "/"); r != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return path.Clean(strings.Join(parts, "/"))
}

// FileName returns the last element of a slash- or backslash-separated path.
func FileName(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
