// Package transports registers every built-in transport when imported.
package transports

import (
	_ "github.com/drblury/protoevents/transport/aws"
	_ "github.com/drblury/protoevents/transport/channel"
	_ "github.com/drblury/protoevents/transport/http"
	_ "github.com/drblury/protoevents/transport/jetstream"
	_ "github.com/drblury/protoevents/transport/kafka"
	_ "github.com/drblury/protoevents/transport/nats"
	_ "github.com/drblury/protoevents/transport/rabbitmq"
)
