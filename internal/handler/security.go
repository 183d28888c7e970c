package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/fbccsz/yshpics/internal/domain/seller"
	"github.com/fbccsz/yshpics/internal/identity"
)

var errOwnerOnly = errors.New("restricted to the platform owner")

// sessionCookie is read when no Authorization header is sent.
const sessionCookie = "session"

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// requireSeller authenticates the seller session and stores the seller id
// in the request context.
func (h *Handler) requireSeller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			fail(w, r, identity.ErrUnauthorized)
			return
		}
		id, err := h.sessions.Verify(token)
		if err != nil {
			fail(w, r, identity.ErrUnauthorized)
			return
		}
		next(w, r.WithContext(identity.WithSeller(r.Context(), id)))
	}
}

// requireOwner additionally checks that the seller is the platform owner.
func (h *Handler) requireOwner(next http.HandlerFunc) http.HandlerFunc {
	return h.requireSeller(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.SellerFromContext(r.Context())
		s, err := h.sellers.Get(r.Context(), id)
		if errors.Is(err, seller.ErrNotFound) {
			// Session of a deleted seller.
			fail(w, r, identity.ErrUnauthorized)
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}
		if h.ownerEmail == "" || !strings.EqualFold(s.Email, h.ownerEmail) {
			fail(w, r, errOwnerOnly)
			return
		}
		next(w, r)
	})
}
