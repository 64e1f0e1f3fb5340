package cerr

import (
	"context"
	"net/http"

	"github.com/kazz187/asmith/pkg/panicerr"
)

type replyKey struct{}

// reply is what a JSON handler asked to be written. A handler that never
// calls Respond gets 204.
type reply struct {
	value any
	err   error
	set   bool
}

func replyFromContext(ctx context.Context) *reply {
	if rp, ok := ctx.Value(replyKey{}).(*reply); ok {
		return rp
	}
	return nil
}

// Respond records the body or the error for the current request. The last
// call wins.
func Respond(ctx context.Context, v any, err error) {
	rp := replyFromContext(ctx)
	if rp == nil {
		return
	}
	rp.value, rp.err, rp.set = v, err, true
}

func RespondError(ctx context.Context, code Code, msg string) {
	Respond(ctx, nil, NewError(code, msg, nil))
}

// NewJSONResponseChiMiddleware renders the reply recorded with Respond once
// the handler returns. Handler panics become an internal error response.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rp := &reply{}
			ctx := context.WithValue(r.Context(), replyKey{}, rp)
			err := panicerr.Safe(func() error {
				next.ServeHTTP(rw, r.WithContext(ctx))
				return nil
			})()
			if err != nil {
				rp.value, rp.err, rp.set = nil, NewError(Internal, "internal error", err), true
			}
			if !rp.set {
				rw.WriteHeader(http.StatusNoContent)
				return
			}
			ExtractToHTTPResponse(ctx, rw, rp)
		})
	}
}
