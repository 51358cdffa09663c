package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// otherProvider labels webhook calls for providers that are not configured.
const otherProvider = "other"

// HTTPObs records request counts, latency and in-flight requests.
type HTTPObs struct {
	Metrics *HTTPMetrics
	// Providers are the payment provider names recorded verbatim in the
	// provider label. Any other {provider} value is recorded as "other" so
	// callers cannot grow the label set.
	Providers []string
}

// Middleware must be installed on the root router so it sees the final route.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	known := make(map[string]bool, len(o.Providers))
	for _, p := range o.Providers {
		known[strings.ToLower(p)] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		o.Metrics.InFlight.Inc()
		defer o.Metrics.InFlight.Dec()
		start := time.Now()
		next.ServeHTTP(ww, r)

		route, provider := routeLabels(r)
		if provider != "" && !known[provider] {
			provider = otherProvider
		}
		o.Metrics.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(statusOf(ww)), provider).Inc()
		o.Metrics.ReqDur.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// TracingMiddleware wraps each request in a server span. The span is renamed
// to "METHOD route" once routing has resolved the pattern.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/noah-isme/backend-galeri/internal/obs")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route, provider := routeLabels(r)
		status := statusOf(ww)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if provider != "" {
			span.SetAttributes(attribute.String("payment.provider", provider))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// statusOf reports 200 for handlers that never wrote a header, as net/http does.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
