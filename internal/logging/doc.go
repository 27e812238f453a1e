// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logger wraps zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - correlation fields taken from the context (trace_id, request.id, collection)
//   - redaction of sensitive keys and values
//   - level-aware sampling (errors are never sampled)
//
// # Usage
//
//	cfg, err := logging.FromSection(appConfig.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx, _ = logging.WithCollection(ctx, "handbook")
//	logger.Info(ctx, "documents added", zap.Int("count", n))
//
// Vector store backends take a plain *zap.Logger; pass logger.Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "search complete", zap.Int("results", 3))
//	tl.AssertLogged(t, zapcore.InfoLevel, "search complete")
//	tl.AssertField(t, "search complete", "results", int64(3))
package logging
