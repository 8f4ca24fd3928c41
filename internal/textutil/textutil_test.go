package textutil

import "testing"

func TestNormalizeUTF8LF(t *testing.T) {
	got := string(NormalizeUTF8LF([]byte("a\r\nb\rc\xff")))
	if got != "a\nb\nc\uFFFD" {
		t.Fatalf("got %q", got)
	}
}

func TestEnsureTrailingLF(t *testing.T) {
	if string(EnsureTrailingLF([]byte("x"))) != "x\n" {
		t.Fatalf("missing newline not appended")
	}
	if string(EnsureTrailingLF([]byte("x\n"))) != "x\n" {
		t.Fatalf("newline duplicated")
	}
}

func TestCollapseWhitespaceAndHash(t *testing.T) {
	if got := CollapseWhitespace("  a \n\t b  "); got != "a b" {
		t.Fatalf("got %q", got)
	}
	if SHA256Hex("a b") != SHA256Hex(CollapseWhitespace("a\n\nb")) {
		t.Fatalf("fingerprints of equivalent text differ")
	}
	if len(SHA256Hex("")) != 64 {
		t.Fatalf("unexpected hash length")
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"https://github.blog/changelog/2024-05-01-new-thing/": "https-github-blog-changelog-2024-05-01-new-thing",
		"Hello, World!": "hello-world",
		"---":           "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsText(t *testing.T) {
	if !IsText([]byte("type Query {}")) || IsText([]byte{0xff, 0xfe}) {
		t.Fatalf("IsText misclassified input")
	}
}
