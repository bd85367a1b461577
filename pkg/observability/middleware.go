package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on scrape spans.
const (
	AttrHTTPTarget    = "http.target"
	AttrResponseBytes = "http.response.body.size"
	AttrScrape        = "rbarena.scrape"
)

// recorder captures the status code and body size of a response.
type recorder struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(buf []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	n, err := r.ResponseWriter.Write(buf)
	r.bytes += n

	return n, err //nolint:wrapcheck // pass-through writer.
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// HTTPMiddleware wraps next so every request runs under a server span named
// "METHOD /path". Incoming W3C trace context becomes the span parent.
// Requests answered with a 5xx status mark the span as failed.
func HTTPMiddleware(tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		ctx, span := tracer.Start(parent, req.Method+" "+req.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(req.Method),
				attribute.String(AttrHTTPTarget, req.URL.Path),
				attribute.Bool(AttrScrape, req.URL.Path == "/metrics"),
			),
		)
		defer span.End()

		rec := &recorder{ResponseWriter: rw}
		next.ServeHTTP(rec, req.WithContext(ctx))

		status := rec.code()
		span.SetAttributes(
			semconv.HTTPResponseStatusCode(status),
			attribute.Int(AttrResponseBytes, rec.bytes),
		)

		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
