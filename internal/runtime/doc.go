/*
Package runtime implements the error reporting client and the components that
share it.

# Client (client.go)

Client captures exceptions and messages, runs them through the processor chain
(processors.go) and queues them for a single worker goroutine that hands them
to a Sink (sink.go, publisher.go). A full queue or a closed client drops the
report; Flush waits for the queue to drain and Close drains it before closing
the transport the client built.

# Registry (registry.go)

Registry owns the process-wide active client. GetClient creates it lazily;
ConfigureClient replaces it and first rebinds every Consumer in the ledger, in
registration order, so no consumer keeps reporting to a stale client.

# Consumers

  - LogHandler (loghandler.go): slog.Handler turning error records into reports
    and lower records into breadcrumbs.
  - Middleware (middleware.go): net/http middleware reporting panics and
    responses that start after the soft request timeout.

# Observability

ReportMetrics (metrics.go) exposes Prometheus counters, and
Registry.StatusHandler (status.go) serves the redacted active configuration.
*/
package runtime
