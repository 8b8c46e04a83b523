package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Envelope(t *testing.T) {
	body := []byte(`{"version":1,"producer":"event-service","message_id":"m-1","occurred_at":"2026-03-01T10:00:00Z",
		"payload":{"event_id":"6f1c1a3e-8d3b-4b0c-9a55-1d2b9a5d6e01","capacity":25,"waitlist_limited":true,"waitlist_limit":100,
		"registration_closes_at":"2026-03-10T18:00:00Z","require_location":true,"extra":"ignored"}}`)

	env, err := Decode[EventPublishedPayload](body)
	require.NoError(t, err)
	assert.Equal(t, "m-1", env.MessageID)
	require.NotNil(t, env.Payload.Capacity)
	assert.Equal(t, 25, *env.Payload.Capacity)
	assert.True(t, env.Payload.WaitlistLimited)
	assert.True(t, env.Payload.RequireLocation)
	require.NotNil(t, env.Payload.RegistrationClosesAt)
}

func TestDecode_BarePayload(t *testing.T) {
	env, err := Decode[EventCanceledPayload]([]byte(`{"id":"6f1c1a3e-8d3b-4b0c-9a55-1d2b9a5d6e01","reason":"weather"}`))
	require.NoError(t, err)
	assert.Empty(t, env.MessageID)
	assert.Equal(t, "weather", env.Payload.Reason)

	id, err := ResolveEventID(env.Payload.EventID, env.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("6f1c1a3e-8d3b-4b0c-9a55-1d2b9a5d6e01"), id)
}

func TestResolveEventID_Invalid(t *testing.T) {
	_, err := ResolveEventID("", "nope")
	assert.Error(t, err)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode[EventDeletedPayload]([]byte(`not json`))
	assert.Error(t, err)
}
