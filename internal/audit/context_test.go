package audit

import (
	"net/http/httptest"
	"testing"
)

func TestBuildContextDefaultsToSystemActor(t *testing.T) {
	request := httptest.NewRequest("POST", "/quotes", nil)

	ctx := BuildContext(request, "", "", "")
	if ctx.UserID != SystemActor {
		t.Fatalf("expected system actor, got %q", ctx.UserID)
	}
}

func TestBuildContextCapturesRequestMetadata(t *testing.T) {
	request := httptest.NewRequest("POST", "/quotes", nil)
	request.RemoteAddr = "203.0.113.7:52114"
	request.Header.Set("User-Agent", "fabops-cli/1.4")

	ctx := BuildContext(request, "user-9", " Dana Reyes ", " price correction ")
	if ctx.UserID != "user-9" {
		t.Fatalf("unexpected actor %q", ctx.UserID)
	}
	if ctx.UserName != "Dana Reyes" {
		t.Fatalf("expected trimmed name, got %q", ctx.UserName)
	}
	if ctx.Reason != "price correction" {
		t.Fatalf("expected trimmed reason, got %q", ctx.Reason)
	}
	if ctx.IPAddress != "203.0.113.7" {
		t.Fatalf("unexpected ip %q", ctx.IPAddress)
	}
	if ctx.UserAgent != "fabops-cli/1.4" {
		t.Fatalf("unexpected user agent %q", ctx.UserAgent)
	}
}

func TestBuildContextPrefersForwardedFor(t *testing.T) {
	request := httptest.NewRequest("POST", "/quotes", nil)
	request.RemoteAddr = "10.0.0.2:9000"
	request.Header.Set("X-Forwarded-For", "198.51.100.23, 10.0.0.2")

	ctx := BuildContext(request, "user-1", "", "")
	if ctx.IPAddress != "198.51.100.23" {
		t.Fatalf("expected first forwarded address, got %q", ctx.IPAddress)
	}
}

func TestBuildContextNilRequest(t *testing.T) {
	ctx := BuildContext(nil, "", "", "reason")
	if ctx.UserID != SystemActor {
		t.Fatalf("expected system actor, got %q", ctx.UserID)
	}
	if ctx.IPAddress != "" || ctx.UserAgent != "" {
		t.Fatalf("expected empty request metadata without a request")
	}
}
