package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
)

const accessTokenQueryParameter = "access_token"

// ErrUnknownCaller indicates a valid token whose user is not registered.
var ErrUnknownCaller = errors.New("auth: unknown caller")

// CallerResolver turns a raw token into a user id.
type CallerResolver interface {
	ResolveCaller(token string) (messaging.UserID, error)
}

// SessionResolver authenticates HTTP requests against registered users.
type SessionResolver struct {
	tokens    CallerResolver
	directory messaging.Directory
}

// NewSessionResolver constructs a SessionResolver.
func NewSessionResolver(tokens CallerResolver, directory messaging.Directory) (*SessionResolver, error) {
	if tokens == nil {
		return nil, errors.New("auth: token resolver required")
	}
	if directory == nil {
		return nil, errors.New("auth: user directory required")
	}
	return &SessionResolver{tokens: tokens, directory: directory}, nil
}

// ResolveRequest reads the bearer token, falling back to the access_token query
// parameter for clients such as EventSource that cannot set headers.
func (r *SessionResolver) ResolveRequest(request *http.Request) (messaging.UserID, error) {
	if request == nil {
		return 0, ErrMissingToken
	}
	token := bearerToken(request.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(request.URL.Query().Get(accessTokenQueryParameter))
	}
	if token == "" {
		return 0, ErrMissingToken
	}
	userID, err := r.tokens.ResolveCaller(token)
	if err != nil {
		return 0, err
	}
	if _, ok := r.directory.Handle(userID); !ok {
		return 0, ErrUnknownCaller
	}
	return userID, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
