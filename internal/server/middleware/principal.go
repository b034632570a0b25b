package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Principal headers set by the upstream gateway.
const (
	PrincipalHeader          = "X-Arena-Principal"
	PrincipalTimestampHeader = "X-Arena-Timestamp"
	PrincipalSignatureHeader = "X-Arena-Signature"
)

// maxSignedBody caps the body read to check a signed assertion.
const maxSignedBody = 1 << 20

// PrincipalVerifier checks a gateway assertion over the request body.
type PrincipalVerifier interface {
	Verify(method, path, principal string, body []byte, ts, sig string) error
}

var errBodyTooLarge = errors.New("middleware: signed body too large")

type (
	principalKey     struct{}
	principalSlotKey struct{}
)

// principalSlot carries the resolved principal back out to Logging.
type principalSlot struct {
	addr common.Address
	set  bool
}

func withPrincipalSlot(ctx context.Context, slot *principalSlot) context.Context {
	return context.WithValue(ctx, principalSlotKey{}, slot)
}

// Principal resolves the calling account from the principal header and
// stores it in the request context. Requests without the header continue
// anonymously. With a nil verifier the header is trusted as sent.
func Principal(verifier PrincipalVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(PrincipalHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(raw) {
				writeJSONError(w, http.StatusBadRequest, "malformed principal")
				return
			}
			if verifier != nil {
				body, err := readBody(r)
				if errors.Is(err, errBodyTooLarge) {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				if err != nil {
					writeJSONError(w, http.StatusBadRequest, "unreadable request body")
					return
				}
				err = verifier.Verify(r.Method, r.URL.Path, raw, body,
					r.Header.Get(PrincipalTimestampHeader),
					r.Header.Get(PrincipalSignatureHeader))
				if err != nil {
					logger.WarnContext(r.Context(), "principal rejected",
						slog.String("request_id", RequestIDFrom(r.Context())),
						slog.String("error", err.Error()),
					)
					writeJSONError(w, http.StatusUnauthorized, "invalid principal signature")
					return
				}
			}
			addr := common.HexToAddress(raw)
			if slot, ok := r.Context().Value(principalSlotKey{}).(*principalSlot); ok {
				slot.addr, slot.set = addr, true
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), addr)))
		})
	}
}

// readBody buffers the request body and puts a fresh reader back in its
// place for the handler.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(body) > maxSignedBody {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// PrincipalFrom returns the account set by Principal.
func PrincipalFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(principalKey{}).(common.Address)
	return addr, ok
}

// WithPrincipal returns ctx carrying addr as the principal.
func WithPrincipal(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, principalKey{}, addr)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
