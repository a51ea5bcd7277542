package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// JobRealmHeader is the client-identification header used to scope job
// visibility per realm.
const JobRealmHeader = "X-Job-Realm"

var realmPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]+$`)

// ErrBadRealm is returned when a client-supplied realm token fails
// validation (too short, or containing characters outside
// [a-zA-Z0-9_-]).
var ErrBadRealm = errors.New("job realm must be at least 8 characters of [a-zA-Z0-9_-]")

func validateRealm(realm string) error {
	if len(realm) < 8 || !realmPattern.MatchString(realm) {
		return ErrBadRealm
	}
	return nil
}

type realmContextKey struct{}

// RealmFromContext returns the realm associated with the request, or
// "" if job-realm scoping is disabled or the caller is an admin token.
func RealmFromContext(ctx context.Context) string {
	realm, _ := ctx.Value(realmContextKey{}).(string)
	return realm
}

// JobRealmExecute returns middleware for the execute route: when
// realm scoping is enabled it validates a supplied X-Job-Realm or mints
// a fresh one, so a first-time caller always gets a usable token back.
func JobRealmExecute(enabled bool, adminTokens []string) func(http.Handler) http.Handler {
	admin := adminSet(adminTokens)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			realm := r.Header.Get(JobRealmHeader)
			if realm == "" {
				realm = uuid.NewString()
			} else if err := validateRealm(realm); err != nil {
				writeError(w, err)
				return
			}
			serveWithRealm(next, w, r, resolveAdmin(realm, admin))
		})
	}
}

// JobRealmAccess returns middleware for status/results/dismiss/jobs
// routes: when scoping is enabled, a missing X-Job-Realm is
// unauthorized rather than auto-minted, since the caller must already
// hold the token that scoped their job.
func JobRealmAccess(enabled bool, adminTokens []string) func(http.Handler) http.Handler {
	admin := adminSet(adminTokens)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			realm := r.Header.Get(JobRealmHeader)
			if realm == "" {
				writeProblem(w, http.StatusUnauthorized, "job realm required", "")
				return
			}
			serveWithRealm(next, w, r, resolveAdmin(realm, admin))
		})
	}
}

func adminSet(tokens []string) map[string]struct{} {
	admin := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		admin[t] = struct{}{}
	}
	return admin
}

func resolveAdmin(realm string, admin map[string]struct{}) string {
	if _, ok := admin[realm]; ok {
		return ""
	}
	return realm
}

func serveWithRealm(next http.Handler, w http.ResponseWriter, r *http.Request, realm string) {
	ctx := context.WithValue(r.Context(), realmContextKey{}, realm)
	next.ServeHTTP(w, r.WithContext(ctx))
}
