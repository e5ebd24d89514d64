package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/common/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tel, err := NewWithExporter("flowmon-test", "dev", exporter, logger.Nop())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "poller.tick")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "poller.tick", spans[0].Name)

	require.NoError(t, tel.Shutdown(context.Background()))
}
