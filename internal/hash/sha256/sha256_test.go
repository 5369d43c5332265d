package sha256

import (
	"errors"
	"strings"
	"testing"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestOfAndReadAgree(t *testing.T) {
	t.Parallel()

	want := Digest{Hex: helloDigest, Size: 11}
	if got := Of([]byte("hello world")); got != want {
		t.Fatalf("Of() = %+v, want %+v", got, want)
	}
	got, err := Read(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != want {
		t.Fatalf("Read() = %+v, want %+v", got, want)
	}
	if s := want.String(); s != "sha256:"+helloDigest+" (11 bytes)" {
		t.Fatalf("unexpected String(): %s", s)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestReadPropagatesErrors(t *testing.T) {
	t.Parallel()

	if _, err := Read(brokenReader{}); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestHasherMatchesOf(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}
}
