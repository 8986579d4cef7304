package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bcnelson/labgroups/internal/domain"
	"go.uber.org/zap"
)

// Resolver finds the user name of the person making a request.
type Resolver interface {
	UserName(r *http.Request) (string, bool)
}

// HeaderResolver reads the user name from a header set by a trusted proxy.
type HeaderResolver struct {
	Header string
}

// UserName implements Resolver.
func (h HeaderResolver) UserName(r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.Header.Get(h.Header))
	return name, name != ""
}

// UserLookup resolves a user name to a user.
type UserLookup func(ctx context.Context, userName string) (*domain.User, error)

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor returns a copy of ctx carrying the acting user.
func WithActor(ctx context.Context, actor *domain.User) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFrom returns the acting user, or nil for anonymous requests.
func ActorFrom(ctx context.Context) *domain.User {
	actor, _ := ctx.Value(actorContextKey).(*domain.User)
	return actor
}

// ResolveActor is middleware that stores the acting user on the request
// context. Requests without a known user pass through anonymously.
func ResolveActor(resolver Resolver, lookup UserLookup, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := resolver.UserName(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := lookup(r.Context(), name)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					log.Error("resolve actor", zap.String("user_name", name), zap.Error(err))
				} else {
					log.Debug("unknown actor", zap.String("user_name", name))
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
