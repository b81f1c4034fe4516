package utils

import (
	"strings"
	"testing"
)

func TestTrackingTokenIsStable(t *testing.T) {
	t.Parallel()

	a := TrackingToken("<abc@acme.test>")
	b := TrackingToken("<abc@acme.test>")
	if a != b {
		t.Errorf("token not deterministic: %q vs %q", a, b)
	}
	if len(a) != 20 {
		t.Errorf("token length = %d, want 20", len(a))
	}
	if other := TrackingToken("<xyz@acme.test>"); other == a {
		t.Error("distinct message IDs produced identical tokens")
	}
}

func TestInjectTracking(t *testing.T) {
	t.Parallel()

	html := `<p>Hello</p><a href="https://example.com/pricing">pricing</a>`
	out := InjectTracking(html, "https://mail.acme.test", "<m1@acme.test>")

	if !strings.Contains(out, `/track/open/`) {
		t.Error("open pixel not injected")
	}
	if !strings.Contains(out, `/track/click/`) {
		t.Error("link not rewritten through click tracker")
	}
	if !strings.Contains(out, "url=https%3A%2F%2Fexample.com%2Fpricing") {
		t.Errorf("original URL not preserved in tracked link: %s", out)
	}
	if strings.Contains(out, `href="https://example.com/pricing"`) {
		t.Error("raw link survived rewriting")
	}
}

func TestInjectTrackingRewritesAllLinks(t *testing.T) {
	t.Parallel()

	html := `<a href="https://a.test">a</a><a href="https://b.test">b</a>`
	out := InjectTracking(html, "https://mail.acme.test", "<m2@acme.test>")

	if got := strings.Count(out, "/track/click/"); got != 2 {
		t.Errorf("rewrote %d links, want 2", got)
	}
}
