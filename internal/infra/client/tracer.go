package client

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("infra/client")
