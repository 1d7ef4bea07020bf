package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
)

type stubDirectory map[messaging.UserID]string

func (d stubDirectory) Handle(userID messaging.UserID) (string, bool) {
	handle, ok := d[userID]
	return handle, ok
}

func (d stubDirectory) IsGlobalOwner(messaging.UserID) bool {
	return false
}

func TestSessionResolverReadsBearerAndQuery(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	resolver, err := NewSessionResolver(issuer, stubDirectory{7: "alice"})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}
	signed, _, err := issuer.IssueToken(context.Background(), messaging.UserID(7))
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)
	bearer.Header.Set("Authorization", "Bearer "+signed)
	if userID, err := resolver.ResolveRequest(bearer); err != nil || userID != 7 {
		t.Fatalf("expected bearer resolution, got %d %v", userID, err)
	}

	query := httptest.NewRequest(http.MethodGet, "/notifications/stream?access_token="+signed, http.NoBody)
	if userID, err := resolver.ResolveRequest(query); err != nil || userID != 7 {
		t.Fatalf("expected query resolution, got %d %v", userID, err)
	}
}

func TestSessionResolverRejections(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	resolver, err := NewSessionResolver(issuer, stubDirectory{7: "alice"})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	missing := httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)
	if _, err := resolver.ResolveRequest(missing); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	wrongScheme := httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)
	wrongScheme.Header.Set("Authorization", "Basic abc")
	if _, err := resolver.ResolveRequest(wrongScheme); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error for non-bearer scheme, got %v", err)
	}

	stranger, _, err := issuer.IssueToken(context.Background(), messaging.UserID(8))
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	unknown := httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)
	unknown.Header.Set("Authorization", "Bearer "+stranger)
	if _, err := resolver.ResolveRequest(unknown); !errors.Is(err, ErrUnknownCaller) {
		t.Fatalf("expected unknown caller error, got %v", err)
	}

	if _, err := NewSessionResolver(nil, stubDirectory{}); err == nil {
		t.Fatalf("expected constructor to require a token resolver")
	}
}
