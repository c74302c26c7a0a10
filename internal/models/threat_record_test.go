package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatRecordWireFormat(t *testing.T) {
	rec := ThreatRecord{
		ID:          7,
		RuleName:    "phishing_url_heuristics",
		URL:         "https://faceboook.tk/login",
		Filename:    "invoice.pdf.exe",
		FileHash:    "deadbeef",
		MimeType:    "application/x-msdownload",
		FileSize:    4096,
		Severity:    SeverityHigh,
		ActionTaken: string(ActionBlock),
		DetectedAt:  FromMillis(1700000000000),
		AlertJSON:   `{"total_score":0.75}`,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))

	for _, key := range []string{
		"id", "ruleName", "url", "filename", "fileHash", "mimeType",
		"fileSize", "severity", "actionTaken", "detectedAt", "alertJson",
	} {
		assert.Contains(t, wire, key, "missing wire field %q", key)
	}
	assert.Equal(t, "invoice.pdf.exe", wire["filename"])
	assert.Equal(t, "application/x-msdownload", wire["mimeType"])
	assert.Equal(t, float64(4096), wire["fileSize"])
	assert.Equal(t, `{"total_score":0.75}`, wire["alertJson"])
	assert.Equal(t, float64(1700000000000), wire["detectedAt"])
}
