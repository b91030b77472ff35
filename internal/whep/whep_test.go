package whep

import (
	"errors"
	"testing"
)

const testOffer = "v=0\r\n" +
	"o=- abc123 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 98\r\n" +
	"a=rtpmap:96 H265/90000\r\n" +
	"a=rtpmap:98 H265/90000\r\n"

func TestSessionID(t *testing.T) {
	tests := []struct {
		name    string
		offer   string
		want    string
		wantErr error
	}{
		{"browser offer", testOffer, "abc123", nil},
		{"numeric id", "v=0\no=alice 4611731400430051336 2 IN IP4 0.0.0.0\n", "4611731400430051336", nil},
		{"first o= line wins", "o=- first 1 IN IP4 x\no=- second 1 IN IP4 x\n", "first", nil},
		{"token punctuation", "o=- a.b_c~d+e-f 1 IN IP4 x", "a.b_c~d+e-f", nil},
		{"empty body", "", "", ErrEmptyOffer},
		{"whitespace body", " \r\n ", "", ErrEmptyOffer},
		{"no origin line", "v=0\r\ns=-\r\n", "", ErrNoSessionID},
		{"origin without id", "v=0\r\no=-\r\n", "", ErrNoSessionID},
		{"id with slash", "o=- ../etc 1 IN IP4 x", "", ErrNoSessionID},
		{"id with percent", "o=- a%2Fb 1 IN IP4 x", "", ErrNoSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SessionID(tt.offer)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SessionID() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SessionID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriter(t *testing.T) {
	rw := NewRewriter(map[string]string{"H265": "H264"})

	got := rw.Rewrite(testOffer)
	want := "v=0\r\n" +
		"o=- abc123 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96 98\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"a=rtpmap:98 H264/90000\r\n"
	if got != want {
		t.Errorf("Rewrite() =\n%q\nwant\n%q", got, want)
	}
}

func TestRewriter_ZeroValueAndEmptyMap(t *testing.T) {
	for _, rw := range []Rewriter{{}, NewRewriter(nil), NewRewriter(map[string]string{"": "x"})} {
		if got := rw.Rewrite(testOffer); got != testOffer {
			t.Errorf("Rewrite() changed the offer: %q", got)
		}
	}
}
