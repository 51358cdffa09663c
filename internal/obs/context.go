package obs

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

// routeLabels returns the matched chi pattern and the {provider} URL
// parameter. chi fills its route context while routing, so both are only
// known after the wrapped handler has returned.
func routeLabels(r *http.Request) (route, provider string) {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unmatchedRoute, ""
	}
	route = rc.RoutePattern()
	if route == "" {
		route = unmatchedRoute
	}
	return route, strings.ToLower(strings.TrimSpace(rc.URLParam("provider")))
}
