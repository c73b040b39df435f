package remote

import "testing"

func TestWouldBeManagedHonorsIncludeExclude(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"src/main.go", true},
		{"src/main_test.go", false},
		{".git/HEAD", false},
		{"vendor/lib/x.go", false},
	}
	for _, c := range cases {
		got := wouldBeManaged(c.path,
			[]string{"**/*.go"},
			[]string{"**/*_test.go"},
			[]string{".git", "vendor"},
			false)
		if got != c.want {
			t.Errorf("wouldBeManaged(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestWouldBeManagedCaseInsensitiveSegments(t *testing.T) {
	got := wouldBeManaged("Vendor/x.go", nil, nil, []string{"vendor"}, true)
	if got {
		t.Fatal("case-insensitive segment exclude should match Vendor == vendor")
	}
}

func TestJoinPathTrimsSlashes(t *testing.T) {
	if got := joinPath("/base/", "/rel.txt"); got != "base/rel.txt" {
		t.Fatalf("got %q", got)
	}
	if got := joinPath("", "rel.txt"); got != "rel.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	if !isRetryableStatus(429) || !isRetryableStatus(503) {
		t.Fatal("429 and 503 must be retryable")
	}
	if isRetryableStatus(404) || isRetryableStatus(422) {
		t.Fatal("404 and 422 must not be retryable")
	}
}
