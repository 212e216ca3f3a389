package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret-key-32-bytes-long!!")

func openTemp(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	l, err := Open(Config{Enabled: true, Path: path, Key: testKey})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLogger_RecordAndVerify(t *testing.T) {
	l, path := openTemp(t)

	require.NoError(t, l.Record(Event{Type: EventUnauthorized, Route: "/", Source: "10.0.0.1:5000"}))
	require.NoError(t, l.Record(Event{Type: EventRateLimited, Route: "/", UserID: "U123"}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)

	assert.NoError(t, Verify(path, testKey))
	assert.Error(t, Verify(path, []byte("another key")))
}

func TestLogger_ChainContinuesAcrossReopen(t *testing.T) {
	l, path := openTemp(t)
	require.NoError(t, l.Record(Event{Type: EventSignatureRejected}))
	require.NoError(t, l.Close())

	l2, err := Open(Config{Enabled: true, Path: path, Key: testKey})
	require.NoError(t, err)
	require.NoError(t, l2.Record(Event{Type: EventFollowUpBlocked, Detail: "loopback address blocked"}))
	require.NoError(t, l2.Close())

	assert.NoError(t, Verify(path, testKey))
}

func TestVerify_DetectsTampering(t *testing.T) {
	l, path := openTemp(t)
	require.NoError(t, l.Record(Event{Type: EventRateLimited, UserID: "U123"}))
	require.NoError(t, l.Record(Event{Type: EventRateLimited, UserID: "U123"}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "U123", "U999", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	err = Verify(path, testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestVerify_DetectsRemovedLine(t *testing.T) {
	l, path := openTemp(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(Event{Type: EventUnauthorized}))
	}
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0o600))

	err = Verify(path, testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken")
}

func TestOpen_Disabled(t *testing.T) {
	l, err := Open(Config{})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, l.Record(Event{Type: EventUnauthorized}))
	assert.NoError(t, l.Close())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{Enabled: true})
	assert.Error(t, err)
}

func TestLogger_RecordAfterClose(t *testing.T) {
	l, _ := openTemp(t)
	require.NoError(t, l.Close())
	assert.Error(t, l.Record(Event{Type: EventUnauthorized}))
}
