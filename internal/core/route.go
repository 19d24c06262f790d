package core

import "strings"

// routeSeparators are tried in order; the first match splits the route.
var routeSeparators = []string{"→", "->", "=>"}

// AccountPair is the source and destination of a transfer. When only one
// account is known both fields hold the same name.
type AccountPair struct {
	Source      string
	Destination string
}

// ParseAccountPair splits a raw "source → destination" string. A string
// without a separator, or with one empty side, degrades to a single-account
// route rather than failing. The second return value reports whether the
// string was a well-formed two-sided route.
func ParseAccountPair(raw string) (AccountPair, bool) {
	raw = strings.TrimSpace(raw)
	for _, sep := range routeSeparators {
		left, right, found := strings.Cut(raw, sep)
		if !found {
			continue
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		switch {
		case left != "" && right != "":
			return AccountPair{Source: left, Destination: right}, true
		case left != "":
			return AccountPair{Source: left, Destination: left}, false
		case right != "":
			return AccountPair{Source: right, Destination: right}, false
		}
		return AccountPair{}, false
	}
	return AccountPair{Source: raw, Destination: raw}, false
}

func (p AccountPair) IsZero() bool {
	return p.Source == "" && p.Destination == ""
}

// SingleAccount reports whether both legs name the same account.
func (p AccountPair) SingleAccount() bool {
	return p.Source == p.Destination
}

func (p AccountPair) String() string {
	if p.SingleAccount() {
		return p.Source
	}
	return p.Source + " → " + p.Destination
}
