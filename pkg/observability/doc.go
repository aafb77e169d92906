/*
Package observability exports history activity as Prometheus metrics.

A Metrics value owns the collectors; Metrics.Listener returns an undo.Listener
bound to one session's history:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	history.AddListener(metrics.Listener("session-1", history))
*/
package observability
