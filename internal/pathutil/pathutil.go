// Package pathutil normalizes slash-separated storage paths without touching
// the filesystem.
//
// Paths are handled as strings with '/' separators regardless of the host OS.
// Backslashes are accepted on input and rewritten, so references produced on
// Windows and Unix compare equal after normalization. Three absolute forms are
// recognised:
//
//	/srv/app          Unix root
//	C:/Users/app      drive letter (also C:\Users\app)
//	//host/share/app  UNC (also \\host\share\app)
package pathutil

import "strings"

// Normalize collapses "." and ".." segments, repeated separators and trailing
// separators. The absolute prefix of p is preserved and ".." never climbs
// above it; leading ".." segments of a relative path are kept. The empty
// path and "." both normalize to "".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	prefix, rest := splitRoot(p)

	var out []string
	for _, seg := range strings.Split(rest, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if prefix == "" {
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}

	body := strings.Join(out, "/")
	if prefix == "" {
		return body
	}
	if body == "" {
		return prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + body
}

// IsAbs reports whether p carries one of the recognised absolute prefixes.
func IsAbs(p string) bool {
	prefix, _ := splitRoot(strings.ReplaceAll(p, `\`, "/"))
	return prefix != ""
}

// Join joins the non-empty elements with '/' and normalizes the result.
// An absolute element in any position other than the first is treated as
// relative to what precedes it.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return Normalize(strings.Join(parts, "/"))
}

// TrimPrefix removes prefix from p when prefix covers whole leading segments
// of p. Both arguments are normalized first. The remainder is relative and
// may be "" when p equals prefix.
//
//	TrimPrefix("/srv/app/a.jpg", "/srv/app")         -> "a.jpg", true
//	TrimPrefix("/srv/application/a.jpg", "/srv/app") -> "/srv/application/a.jpg", false
func TrimPrefix(p, prefix string) (string, bool) {
	np, npre := Normalize(p), Normalize(prefix)
	if npre == "" {
		return np, false
	}
	if np == npre {
		return "", true
	}
	base := npre
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if strings.HasPrefix(np, base) {
		return np[len(base):], true
	}
	return np, false
}

// splitRoot separates the absolute prefix of a slash-converted path from the
// remainder. The prefix is "" for relative paths.
func splitRoot(p string) (prefix, rest string) {
	switch {
	case len(p) > 2 && p[0] == '/' && p[1] == '/' && p[2] != '/':
		// UNC: //host/share is the root. "//host" alone still counts as
		// absolute so it is never re-rooted under a project directory.
		// Three or more slashes are a Unix root with a doubled separator.
		segs := strings.SplitN(p[2:], "/", 3)
		switch {
		case len(segs) == 1 || segs[1] == "":
			return "//" + segs[0], strings.Join(segs[1:], "/")
		case len(segs) == 2:
			return "//" + segs[0] + "/" + segs[1], ""
		default:
			return "//" + segs[0] + "/" + segs[1], segs[2]
		}
	case strings.HasPrefix(p, "/"):
		return "/", p[1:]
	case hasDrive(p):
		if len(p) >= 3 && p[2] == '/' {
			return p[:2] + "/", p[3:]
		}
		// "C:" and "C:foo" are drive-relative on Windows; treat the
		// drive itself as the root so they stay absolute here.
		return p[:2] + "/", p[2:]
	}
	return "", p
}

func hasDrive(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
