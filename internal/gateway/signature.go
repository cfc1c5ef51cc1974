package gateway

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

// Signature headers set by the platform on every delivery. The signature
// covers timestamp+body, so a replayed body cannot be re-signed under a
// fresh timestamp without the platform's key.
const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"
)

// verifySignature builds the middleware enforcing the platform's request
// signing. An empty key disables verification for local development.
func verifySignature(hexKey string) (func(http.Handler) http.Handler, error) {
	if hexKey == "" {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode gateway public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("gateway public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	key := ed25519.PublicKey(raw)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
				return
			}
			if !signedBy(key, r.Header.Get(headerTimestamp), body, r.Header.Get(headerSignature)) {
				writeError(w, http.StatusUnauthorized, "BAD_SIGNATURE", "request signature check failed", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}, nil
}

func signedBy(key ed25519.PublicKey, timestamp string, body []byte, hexSig string) bool {
	if timestamp == "" || hexSig == "" {
		return false
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	payload := make([]byte, 0, len(timestamp)+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, body...)
	return ed25519.Verify(key, payload, sig)
}
