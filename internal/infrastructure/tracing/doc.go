/*
Package tracing provides lightweight request tracing for the relay.

Each HTTP request and each prompt exchange becomes a span that is logged
through zap when submitted. Spans are buffered (1000) and processed on a
collector goroutine; Close drains them.

	tracer := tracing.New("relay", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	ctx = tracing.WithTraceID(ctx, requestID)
	span, ctx := tracer.StartSpan(ctx, "relay.exchange")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Trace context travels in the X-Trace-ID and X-Span-ID headers.
*/
package tracing
