package accesslog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() Entry {
	return Entry{
		Time:      time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		Method:    "GET",
		Path:      "/a.txt",
		Status:    200,
		Bytes:     5,
		Client:    "10.0.0.1",
		UserAgent: "curl/8",
		Latency:   1500 * time.Microsecond,
	}
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	return out
}

func TestLogFields(t *testing.T) {
	var stdout bytes.Buffer
	l, err := New(&stdout, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, l.Sink())

	l.Log(sampleEntry())

	lines := decodeLines(t, stdout.Bytes())
	require.Len(t, lines, 1)
	e := lines[0]
	assert.Equal(t, "2026-10-15T12:00:00Z", e["timestamp"])
	assert.Equal(t, "GET", e["method"])
	assert.Equal(t, "/a.txt", e["path"])
	assert.EqualValues(t, 200, e["status"])
	assert.EqualValues(t, 5, e["bytes"])
	assert.Equal(t, "10.0.0.1", e["client"])
	assert.Equal(t, "curl/8", e["user_agent"])
	assert.EqualValues(t, 1.5, e["latency"])
	assert.Equal(t, "-", e["upstream"])
	assert.NotContains(t, e, "level")
}

func TestLogAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"existing\":true}\n"), 0o644))

	var stdout bytes.Buffer
	l, err := New(&stdout, path, zerolog.Nop())
	require.NoError(t, err)

	e := sampleEntry()
	e.Upstream = "backend:8080"
	l.Log(e)
	l.Log(sampleEntry())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, data)
	require.Len(t, lines, 3, "file is appended to, never truncated")
	assert.Equal(t, true, lines[0]["existing"])
	assert.Equal(t, "backend:8080", lines[1]["upstream"])
	assert.Len(t, decodeLines(t, stdout.Bytes()), 2, "stdout always gets the entry")
}

func TestOpenFailure(t *testing.T) {
	_, err := New(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing", "access.log"), zerolog.Nop())
	assert.Error(t, err)
}

func TestSinkWriteFailureIsSwallowed(t *testing.T) {
	var diag bytes.Buffer
	path := filepath.Join(t.TempDir(), "access.log")
	sink, err := OpenFileSink(path, zerolog.New(&diag))
	require.NoError(t, err)

	require.NoError(t, sink.f.Close()) // force the next write to fail

	n, err := sink.Write([]byte("line\n"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Contains(t, diag.String(), "failed to write access log entry")
}

func TestSinkReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	sink, err := OpenFileSink(path, zerolog.Nop())
	require.NoError(t, err)
	defer sink.Close()

	_, _ = sink.Write([]byte("before\n"))
	require.NoError(t, os.Rename(path, filepath.Join(dir, "access.log.1")))
	require.NoError(t, sink.Reopen())
	_, _ = sink.Write([]byte("after\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(data))
}

func TestWatcherReopensAfterRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	var stdout bytes.Buffer
	l, err := New(&stdout, path, zerolog.Nop())
	require.NoError(t, err)
	defer l.Close()

	stop, err := StartWatcher(context.Background(), l.Sink(), zerolog.Nop())
	require.NoError(t, err)
	defer stop()

	l.Log(sampleEntry())
	require.NoError(t, os.Rename(path, filepath.Join(dir, "access.log.1")))

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(path)
		return statErr == nil
	}, 3*time.Second, 20*time.Millisecond, "watcher should recreate the log file")

	require.Eventually(t, func() bool {
		l.Log(sampleEntry())
		data, _ := os.ReadFile(path)
		return strings.Contains(string(data), "/a.txt")
	}, 3*time.Second, 50*time.Millisecond)

	rotated, err := os.ReadFile(filepath.Join(dir, "access.log.1"))
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, rotated), 1)
}

func TestStartWatcherNilSink(t *testing.T) {
	stop, err := StartWatcher(context.Background(), nil, zerolog.Nop())
	require.NoError(t, err)
	stop()
}
