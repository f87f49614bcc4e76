/*
Package observability connects the engine's lifecycle hooks to Prometheus
metrics and structured logs, and sets up OpenTelemetry trace export.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := domain.ComposeHooks(metrics.Hooks(), observability.LoggingHooks(logger))
	engine, _ := convograph.New("graph.json", convograph.WithLifecycleHooks(hooks))
*/
package observability
