package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_WireFormat(t *testing.T) {
	expires := FromMillis(1700000001000)
	lastHit := FromMillis(1700000002000)
	p := Policy{
		ID:         7,
		RuleName:   "Block Evil",
		URLPattern: "*://evil.example/*",
		FileHash:   "abc",
		MimeType:   "application/x-executable",
		Action:     ActionBlock,
		CreatedAt:  FromMillis(1700000000000),
		CreatedBy:  "user",
		ExpiresAt:  &expires,
		HitCount:   3,
		LastHit:    &lastHit,
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))

	// Field names are part of the IPC contract.
	for _, key := range []string{
		"id", "ruleName", "urlPattern", "fileHash", "mimeType",
		"action", "createdAt", "createdBy", "expiresAt", "hitCount", "lastHit",
	} {
		assert.Contains(t, wire, key)
	}

	// Timestamps travel as millisecond epoch integers.
	assert.Equal(t, float64(1700000000000), wire["createdAt"])
	assert.Equal(t, float64(1700000001000), wire["expiresAt"])
	assert.Equal(t, "Block", wire["action"])

	var back Policy
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.RuleName, back.RuleName)
	assert.Equal(t, p.CreatedAt.UnixMilli(), back.CreatedAt.UnixMilli())
	require.NotNil(t, back.ExpiresAt)
	assert.Equal(t, expires.UnixMilli(), back.ExpiresAt.UnixMilli())
}

func TestPolicy_Validate(t *testing.T) {
	valid := Policy{RuleName: "r", URLPattern: "*", Action: ActionAllow}
	assert.NoError(t, valid.Validate())

	t.Run("missing rule name", func(t *testing.T) {
		p := valid
		p.RuleName = ""
		assert.Error(t, p.Validate())
	})

	t.Run("missing match key", func(t *testing.T) {
		p := valid
		p.URLPattern = ""
		assert.Error(t, p.Validate())
	})

	t.Run("unknown action", func(t *testing.T) {
		p := valid
		p.Action = "Explode"
		assert.Error(t, p.Validate())
	})
}

func TestPolicy_Expired(t *testing.T) {
	now := FromMillis(1000)

	t.Run("no expiry never expires", func(t *testing.T) {
		assert.False(t, Policy{}.Expired(now))
	})

	t.Run("boundary is expired", func(t *testing.T) {
		at := FromMillis(1000)
		assert.True(t, Policy{ExpiresAt: &at}.Expired(now))
	})

	t.Run("future expiry is live", func(t *testing.T) {
		at := FromMillis(1001)
		assert.False(t, Policy{ExpiresAt: &at}.Expired(now))
	})
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"Allow", "Block", "Quarantine", "BlockAutofill", "WarnUser"} {
		a, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(a))
	}

	_, err := ParseAction("allow")
	assert.Error(t, err, "actions are case sensitive")
	_, err = ParseAction("Delete")
	assert.Error(t, err)
}

func TestUnixMillis_JSON(t *testing.T) {
	u := FromMillis(123456789)
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, "123456789", string(data))

	var back UnixMillis
	require.NoError(t, json.Unmarshal([]byte("123456789"), &back))
	assert.Equal(t, int64(123456789), back.UnixMilli())

	assert.Error(t, json.Unmarshal([]byte(`"2023-01-01"`), &back))
}
