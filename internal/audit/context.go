package audit

import (
	"net/http"
	"strings"
)

// SystemActor is recorded when no authenticated actor is present.
const SystemActor = "system"

// Context carries the actor and request metadata attached to every history
// entry.
type Context struct {
	UserID    string
	UserName  string
	IPAddress string
	UserAgent string
	Reason    string
}

// BuildContext derives audit context from an inbound request. Pure: no I/O,
// never fails. The actor defaults to SystemActor when the request carries no
// authenticated identity.
func BuildContext(r *http.Request, actorID, actorName, reason string) Context {
	ctx := Context{
		UserID:   strings.TrimSpace(actorID),
		UserName: strings.TrimSpace(actorName),
		Reason:   strings.TrimSpace(reason),
	}
	if ctx.UserID == "" {
		ctx.UserID = SystemActor
	}
	if r != nil {
		ctx.IPAddress = clientIP(r)
		ctx.UserAgent = r.Header.Get("User-Agent")
	}
	return ctx
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndexByte(addr, ':'); idx >= 0 {
		return addr[:idx]
	}
	return addr
}
