package broadcast

import "testing"

func TestAcceptKeyMatchesRFC6455Example(t *testing.T) {
	// The example key/accept pair straight out of RFC 6455 section 1.3.
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("acceptKey() = %q, want %q", got, want)
	}
}
