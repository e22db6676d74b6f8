package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claudebridge/config"
	"github.com/randalmurphal/claudebridge/supervisor"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "claudebridge dev\n", out)
}

func TestSchemaCmd(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Contains(t, doc["properties"], "options")
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sdk\n"), 0o600))

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend must be")
}

func TestServeCmd_MissingConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	_, err = newLogger(io.Discard, config.LogConfig{Level: "chatty", Format: "text"})
	assert.Error(t, err)
}

func fakeClaude(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	script := `#!/bin/bash
echo '{"type":"system","subtype":"init","session_id":"e2e-1"}'
echo '{"type":"result","subtype":"success","session_id":"e2e-1","result":"ok"}'
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestServe_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Claude.Command = fakeClaude(t)
	cfg.Claude.DisableMCP = true
	cfg.Sandbox.Dir = t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, cfg, ln, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"claude-command","command":"hello"}`)))

	var got []supervisor.EventType
	for {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var ev supervisor.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev.Type)
		if ev.Type == supervisor.EventSessionComplete {
			require.NotNil(t, ev.ExitCode)
			assert.Equal(t, 0, *ev.ExitCode)
			assert.Equal(t, "e2e-1", ev.SessionID)
			break
		}
	}
	assert.Equal(t, supervisor.EventSessionCreated, got[0])

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
