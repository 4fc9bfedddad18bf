package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFingerprint(t *testing.T) {
	fp := CodeFingerprint("ABC123")
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, CodeFingerprint("ABC123"))
	assert.NotEqual(t, fp, CodeFingerprint("ABC124"))
	assert.NotContains(t, strings.ToUpper(fp), "ABC123")
}

func TestCodeAttrCarriesFingerprintOnly(t *testing.T) {
	kv := CodeAttr("XYZ789")
	assert.Equal(t, "credit.code_fp", string(kv.Key))
	assert.Equal(t, CodeFingerprint("XYZ789"), kv.Value.AsString())
	assert.Equal(t, int64(42), RequestIDAttr(42).Value.AsInt64())
}

func TestInitTracing(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		shutdown, err := InitTracing(TracingConfig{Enabled: false})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("none exporter is a no-op", func(t *testing.T) {
		shutdown, err := InitTracing(TracingConfig{Enabled: true, Exporter: "none"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("unknown exporter is rejected", func(t *testing.T) {
		_, err := InitTracing(TracingConfig{Enabled: true, Exporter: "zipkin"})
		assert.ErrorContains(t, err, "zipkin")
	})
}

func TestSpanHelpersTolerateNoopTracer(t *testing.T) {
	span, ctx := StartServiceSpan(context.Background(), "CreditService", "Submit")
	require.NotNil(t, ctx)
	span.AddAttributes(RequestIDAttr(1))
	span.SetError(assert.AnError)
	span.End()
	assert.Len(t, span.TraceID(), 32)
}
