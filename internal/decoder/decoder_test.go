package decoder

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_WellFormed(t *testing.T) {
	d := New(0, false)
	raw := []byte(`{"collector_name":"ssc-2.0.0","collector_tstamp":1700000000000,"user_agent":"curl/8","remote_ip":"1.2.3.4","events":[{"parameters":{"e":"pv"}},{"parameters":{"e":"se"}}]}`)

	events, bad := d.Decode(raw, "p0")
	require.Nil(t, bad)
	require.Len(t, events, 2)
	assert.Equal(t, "1.2.3.4", events[0].RemoteIP)
	assert.Equal(t, "pv", events[0].Parameters["e"])
}

func TestDecode_ZeroEvents(t *testing.T) {
	d := New(0, false)
	raw := []byte(`{"collector_name":"ssc","events":[]}`)

	events, bad := d.Decode(raw, "p0")
	require.Nil(t, bad)
	assert.Empty(t, events)
}

func TestDecode_MalformedPayload(t *testing.T) {
	d := New(0, false)
	raw := []byte(`not json at all`)

	events, bad := d.Decode(raw, "p0")
	assert.Nil(t, events)
	require.NotNil(t, bad)
	assert.Equal(t, "iglu:com.enrich/adapter_failure/jsonschema/1-0-0", bad.Schema)
}

func TestDecode_SizeViolation(t *testing.T) {
	d := New(10, false)
	raw := []byte(`{"events":[{}]}`)

	events, bad := d.Decode(raw, "p0")
	assert.Nil(t, events)
	require.NotNil(t, bad)
	assert.Equal(t, "iglu:com.enrich/size_violation/jsonschema/1-0-0", bad.Schema)
}

func TestDecode_ExactlyAtMaxRecordSize(t *testing.T) {
	raw := []byte(`{"events":[]}`)
	d := New(len(raw), false)

	events, bad := d.Decode(raw, "p0")
	require.Nil(t, bad)
	assert.Empty(t, events)
}

func TestDecode_Base64Fallback(t *testing.T) {
	inner := []byte(`{"collector_name":"ssc","events":[{"parameters":{"e":"pv"}}]}`)
	raw := []byte(base64.StdEncoding.EncodeToString(inner))

	d := New(0, true)
	events, bad := d.Decode(raw, "p0")
	require.Nil(t, bad)
	require.Len(t, events, 1)
	assert.Equal(t, "pv", events[0].Parameters["e"])
}

func TestDecode_Base64DisabledStaysMalformed(t *testing.T) {
	inner := []byte(`{"events":[{"parameters":{"e":"pv"}}]}`)
	raw := []byte(base64.StdEncoding.EncodeToString(inner))

	d := New(0, false)
	events, bad := d.Decode(raw, "p0")
	assert.Nil(t, events)
	require.NotNil(t, bad)
}

func TestDecode_BadRowPayloadRoundTrips(t *testing.T) {
	d := New(0, false)
	raw := []byte(`{broken`)

	_, bad := d.Decode(raw, "p0")
	require.NotNil(t, bad)

	decoded, err := bad.Data.Payload.Decode()
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}
