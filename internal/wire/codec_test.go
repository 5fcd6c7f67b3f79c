package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

func TestRoundTripSimpleMessage(t *testing.T) {
	msg := New("PING")
	payload, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestRoundTripEmbeddedFileBlob(t *testing.T) {
	data := []byte{0x00, 0x3b, 0xff, 0xfe, 0x80, 0x01, 'h', 'i', 0x00}
	msg := File("WARC_FILE", "job-demo/crawl.warc.gz", data, Str("demo_ab12cd34"))

	payload, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(payload)
	require.NoError(t, err)

	gotPath, err := A(got).Str(0)
	require.NoError(t, err)
	assert.Equal(t, "job-demo/crawl.warc.gz", gotPath)

	gotBlob, err := A(got).Blob(1)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, gotBlob))

	gotJob, err := A(got).Str(2)
	require.NoError(t, err)
	assert.Equal(t, "demo_ab12cd34", gotJob)
}

func TestRoundTripNestedValuesAndTypes(t *testing.T) {
	uc := jobspec.UrlConfig{JobID: "demo_ab12cd34", URL: "https://a/x", Depth: 1, ParentURL: "https://a/"}
	settings := jobspec.JobSettings{
		Identifier:  "demo_ab12cd34",
		URLs:        []string{"https://a/"},
		AllowRegex:  []string{".*"},
		IgnoreRegex: nil,
		Rate:        10,
		Depth:       2,
	}
	peers := []netaddr.Address{netaddr.New("a", 3001), netaddr.New("b", 3002)}

	msg := New("NEW_JOB_STAGER",
		Str("demo_ab12cd34"),
		Addr(netaddr.New("a", 3001)),
		Addresses(peers),
		URLConfigVal(uc),
		SettingsVal(settings),
		Int(42),
	)

	payload, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(payload)
	require.NoError(t, err)

	gotAddrs, err := A(got).List(2)
	require.NoError(t, err)
	require.Len(t, gotAddrs, 2)
	assert.Equal(t, Addr(peers[0]), gotAddrs[0])
	assert.Equal(t, Addr(peers[1]), gotAddrs[1])

	gotURL, err := A(got).URLConfig(3)
	require.NoError(t, err)
	assert.Equal(t, uc, gotURL)

	gotSettings, err := A(got).Settings(4)
	require.NoError(t, err)
	assert.Equal(t, settings.Identifier, gotSettings.Identifier)
	assert.True(t, gotSettings.Allowed("https://a/anything"))

	gotN, err := A(got).Int(5)
	require.NoError(t, err)
	assert.Equal(t, int64(42), gotN)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := New("PONG", Str("hi"))
	require.NoError(t, WriteFrame(&buf, msg))
	require.NoError(t, WriteFrame(&buf, msg))

	got1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got1)

	got2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got2)
}
