package strutil

import "iter"

// CmpFold reports whether a and b match case-insensitively. Unlike
// strings.EqualFold it only folds ASCII letters, which is all HTTP
// tokens may consist of anyway.
func CmpFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca |= 0x20
		}
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if ca != cb {
			return false
		}
	}

	return true
}

func LStripWS(str string) string {
	for i := 0; i < len(str); i++ {
		switch str[i] {
		case ' ', '\t':
		default:
			return str[i:]
		}
	}

	return ""
}

func RStripWS(str string) string {
	for i := len(str); i > 0; i-- {
		switch str[i-1] {
		case ' ', '\t':
		default:
			return str[:i]
		}
	}

	return ""
}

// WalkTokens iterates over a comma-separated header value (e.g.
// Connection or Transfer-Encoding), yielding each token with the
// surrounding whitespace stripped. Empty tokens are skipped.
func WalkTokens(value string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(value) > 0 {
			var token string

			if comma := indexByte(value, ','); comma != -1 {
				token, value = value[:comma], value[comma+1:]
			} else {
				token, value = value, ""
			}

			token = RStripWS(LStripWS(token))
			if len(token) == 0 {
				continue
			}

			if !yield(token) {
				return
			}
		}
	}
}

// HasToken reports whether the comma-separated header value contains
// the token, compared case-insensitively.
func HasToken(value, token string) bool {
	for t := range WalkTokens(value) {
		if CmpFold(t, token) {
			return true
		}
	}

	return false
}

// LastToken returns the last token of a comma-separated header value.
func LastToken(value string) (last string) {
	for t := range WalkTokens(value) {
		last = t
	}

	return last
}

func indexByte(str string, c byte) int {
	for i := 0; i < len(str); i++ {
		if str[i] == c {
			return i
		}
	}

	return -1
}
