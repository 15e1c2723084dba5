// Package transports imports every built-in report transport so that they
// register with transport.DefaultRegistry.
package transports

import (
	_ "github.com/drblury/faultline/transport/aws"
	_ "github.com/drblury/faultline/transport/channel"
	_ "github.com/drblury/faultline/transport/http"
	_ "github.com/drblury/faultline/transport/io"
	_ "github.com/drblury/faultline/transport/kafka"
	_ "github.com/drblury/faultline/transport/nats"
	_ "github.com/drblury/faultline/transport/rabbitmq"
	_ "github.com/drblury/faultline/transport/sentry"
)
