package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(HierarchyBuildsTotal.WithLabelValues(ResultCanceled))
	HierarchyBuildsTotal.WithLabelValues(ResultCanceled).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(HierarchyBuildsTotal.WithLabelValues(ResultCanceled)))

	GraphTypes.Set(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(GraphTypes))
}

func TestStartSpan_NoProvider(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), "test", attribute.String("type", "p.A"))
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
	EndSpan(span, nil)
}
