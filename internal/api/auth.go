package api

import (
	"bytes"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"mmark-score/internal/observability"
)

// SignatureHeader carries hex(md5(body + salt)) on uploads.
const SignatureHeader = "X-MMark-Signature"

const maxUploadBytes = 64 << 10

// Credentials are shared with the benchmark clients.
type Credentials struct {
	Username string
	Password string
	Realm    string
	JSONSalt string
}

// BasicAuth rejects requests without the client API credentials.
func BasicAuth(c Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !equal(user, c.Username) || !equal(pass, c.Password) {
				log.Error().Str("path", r.URL.Path).Msg("missing/bad authentication")
				observability.RequestErrors.WithLabelValues("auth").Inc()
				w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", c.Realm))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// VerifySignature checks the body against the signature header and leaves
// the body readable for the next handler.
func VerifySignature(salt string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				log.Error().Msg("upload: missing signature")
				observability.RequestErrors.WithLabelValues("signature").Inc()
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
			if err != nil {
				observability.RequestErrors.WithLabelValues("body").Inc()
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			if !equal(strings.ToLower(sig), Sign(body, salt)) {
				log.Error().Msg("upload: signature mismatch")
				observability.RequestErrors.WithLabelValues("signature").Inc()
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// Sign returns the signature a client sends for body.
func Sign(body []byte, salt string) string {
	h := md5.New()
	h.Write(body)
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil))
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
