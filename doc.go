// Package faultline layers error reporting onto net/http services.
//
// A process-wide Client is created lazily from the environment (SENTRY_DSN,
// FAULTLINE_REVISION, FAULTLINE_ENV, FAULTLINE_DOMAIN, FAULTLINE_UNIT) the
// first time GetClient is called. The slog handler returned by GetLogHandler
// and the HTTP middleware returned by GetMiddleware register themselves in an
// update ledger, so ConfigureClient swaps the client for all of them at once.
// NewClient builds a standalone client that no registry knows about.
//
// # Soft request timeout
//
// When FAULTLINE_SOFT_REQUEST_TIMEOUT holds a number of milliseconds, the
// middleware reports "Start_response over timeout: <ms>" for every request
// whose response starts after the threshold. Requests are never delayed or
// aborted.
//
// # Transports
//
// Reports are delivered by the transport named in FAULTLINE_TRANSPORT:
//   - sentry: straight to the collector through sentry-go (default)
//   - channel: in-memory Go channels for tests
//   - kafka, rabbitmq, nats, aws: CloudEvents on a broker topic
//   - http: POST to a relay authenticated with X-Sentry-Auth
//   - io: JSON lines in a local file
//
// Custom transports can be added with RegisterTransport. The faultline CLI
// tails any transport that supports subscribing.
package faultline
