// Package whep holds the little SDP handling the gateway does itself.
//
// The gateway never parses or negotiates SDP. It only rewrites codec names
// in an offer before forwarding it, and reads the session id from the
// origin line so that later DELETE requests can be routed.
package whep

import (
	"errors"
	"sort"
	"strings"
)

// ContentTypeSDP is the media type of WHEP offers and answers.
const ContentTypeSDP = "application/sdp"

var (
	// ErrNoSessionID is returned when an offer has no usable o= line.
	ErrNoSessionID = errors.New("whep: offer has no session id")

	// ErrEmptyOffer is returned for a blank request body.
	ErrEmptyOffer = errors.New("whep: empty offer")
)

// SessionID returns the sess-id field of the offer's origin line
// ("o=<username> <sess-id> <sess-version> IN IP4 <address>").
//
// Only the first o= line is considered. The id must be a token of
// [A-Za-z0-9._~+-]; anything else yields ErrNoSessionID, since the id
// is echoed into the Location header and URL path.
func SessionID(offer string) (string, error) {
	if strings.TrimSpace(offer) == "" {
		return "", ErrEmptyOffer
	}

	for line := range strings.Lines(offer) {
		line = strings.TrimRight(line, "\r\n")
		rest, ok := strings.CutPrefix(line, "o=")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 || !isToken(fields[1]) {
			return "", ErrNoSessionID
		}
		return fields[1], nil
	}
	return "", ErrNoSessionID
}

func isToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("._~+-", r):
		default:
			return false
		}
	}
	return s != ""
}

// Rewriter applies fixed textual substitutions to offers.
// The zero value leaves offers unchanged.
type Rewriter struct {
	r *strings.Replacer
}

// NewRewriter builds a rewriter from old->new pairs. Keys are applied in
// sorted order so that overlapping keys behave the same on every run.
func NewRewriter(substitutions map[string]string) Rewriter {
	if len(substitutions) == 0 {
		return Rewriter{}
	}

	keys := make([]string, 0, len(substitutions))
	for k := range substitutions {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Rewriter{}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, substitutions[k])
	}
	return Rewriter{r: strings.NewReplacer(pairs...)}
}

// Rewrite returns offer with every occurrence of each key replaced.
func (w Rewriter) Rewrite(offer string) string {
	if w.r == nil {
		return offer
	}
	return w.r.Replace(offer)
}
