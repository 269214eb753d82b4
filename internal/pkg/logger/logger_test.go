package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInfoWritesStructuredEntry(t *testing.T) {
	buf := captureOutput(t)

	Info("campaign queued", "campaign_id", "c-1", "job_id", "j-1")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "campaign queued", entry["msg"])
	assert.Equal(t, "c-1", entry["campaign_id"])
	assert.Equal(t, "j-1", entry["job_id"])
	assert.NotEmpty(t, entry["time"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(INFO) })

	Info("not shown")
	assert.Zero(t, buf.Len())

	Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestEmailFieldsAreMasked(t *testing.T) {
	buf := captureOutput(t)

	Info("send ok", "recipient_email", "jane.roe@example.com")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "ja***@example.com", entry["recipient_email"])
	assert.NotContains(t, buf.String(), "jane.roe@example.com")
}

func TestEmbeddedEmailsAreMasked(t *testing.T) {
	buf := captureOutput(t)

	Info("send failed", "error", "smtp: mailbox john.doe@example.com unavailable")

	entry := decodeEntry(t, buf)
	assert.Contains(t, entry["error"], "jo***@example.com")
	assert.NotContains(t, buf.String(), "john.doe@example.com")
}

func TestCountsAreNotMasked(t *testing.T) {
	buf := captureOutput(t)

	Info("campaign started", "recipients", 42, "batch_size", 10)

	entry := decodeEntry(t, buf)
	assert.Equal(t, "42", entry["recipients"])
	assert.Equal(t, "10", entry["batch_size"])
}

func TestAddressValuesAreMaskedRegardlessOfKey(t *testing.T) {
	buf := captureOutput(t)

	Info("smtp send ok", "to", "dana.lee@example.com")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "da***@example.com", entry["to"])
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "ja***@example.com", RedactEmail("jane@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("jo@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
