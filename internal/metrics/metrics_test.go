package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", SanitizeSite("https://example.com/contact"))
	require.Equal(t, "example.com", SanitizeSite("example.com"))
	require.Equal(t, "unknown", SanitizeSite("://bad"))
}

func TestObserversTolerateUninitializedCollectors(t *testing.T) {
	// Must not panic before Init.
	ObserveVerification("deliverable")
	ObserveDNSLookup("mx_ok")
	ObserveScrapePage("example.com", "ok")
	ObserveRun("completed")
	ObserveCheckpointFlush("ok")
	ObserveStageItem("blog_check", 0)
	IncSMTPProbes()
	DecSMTPProbes()

	Init()
	Init() // idempotent

	ObserveVerification("deliverable")
	ObserveRun("completed")
}
