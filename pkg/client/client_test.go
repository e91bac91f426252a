package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/server"
	"github.com/loykin/nexus/internal/supervisor"
	tlsconf "github.com/loykin/nexus/internal/tls"
)

type source struct{ snap supervisor.Snapshot }

func (s source) Snapshot() supervisor.Snapshot { return s.snap }

func testFleet() source {
	now := time.Now()
	return source{snap: supervisor.Snapshot{
		FleetStartedAt: now,
		UpdatedAt:      now,
		Instances: []supervisor.InstanceStatus{
			{Name: "default-1", Worker: "default", Queue: "default", PID: 11, Running: true, StartedAt: now},
			{Name: "default-2", Worker: "default", Queue: "default", PID: 12, Running: false, Restarts: 3},
			{Name: "emails", Worker: "emails", Queue: "emails", PID: 13, Running: true},
		},
	}}
}

func newTestServer(t *testing.T, src server.SnapshotSource, token string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mw, err := auth.NewMiddleware(auth.Config{Token: token})
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(src, "", nil).WithAuth(mw).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, testFleet(), "")
	c, err := New(Config{BaseURL: ts.URL + "/"})
	require.NoError(t, err)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	f, err := c.Status(ctx, StatusQuery{})
	require.NoError(t, err)
	require.Len(t, f.Instances, 3)
	assert.Equal(t, 3, f.Instances[1].Restarts)
	assert.False(t, f.Instances[1].Running)

	f, err = c.Status(ctx, StatusQuery{Worker: "default"})
	require.NoError(t, err)
	assert.Len(t, f.Instances, 2)

	in, err := c.Instance(ctx, "emails")
	require.NoError(t, err)
	assert.Equal(t, 13, in.PID)

	_, err = c.Instance(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance not found")

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, 2, h.Running)
}

func TestHealthDown(t *testing.T) {
	ts := newTestServer(t, source{}, "")
	c, err := New(Config{BaseURL: ts.URL})
	require.NoError(t, err)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "down", h.Status)
	assert.True(t, c.IsReachable(context.Background()))
}

func TestToken(t *testing.T) {
	ts := newTestServer(t, testFleet(), "abc")

	c, err := New(Config{BaseURL: ts.URL})
	require.NoError(t, err)
	_, err = c.Status(context.Background(), StatusQuery{})
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)

	c, err = New(Config{BaseURL: ts.URL, Token: "abc"})
	require.NoError(t, err)
	f, err := c.Status(context.Background(), StatusQuery{})
	require.NoError(t, err)
	assert.Len(t, f.Instances, 3)
}

func TestUnreachable(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, c.IsReachable(context.Background()))
	_, err = c.Status(context.Background(), StatusQuery{})
	assert.Error(t, err)
}

func TestTLSWithCA(t *testing.T) {
	dir := t.TempDir()
	srv, err := server.NewServer(server.Config{
		Listen: "127.0.0.1:0",
		TLS:    tlsconf.Config{Enabled: true, Dir: dir, AutoGenerate: true},
	}, testFleet(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	c, err := New(Config{BaseURL: srv.URL(), TLS: &TLSClientConfig{CACert: filepath.Join(dir, "tls.crt")}})
	require.NoError(t, err)
	f, err := c.Status(context.Background(), StatusQuery{})
	require.NoError(t, err)
	assert.Len(t, f.Instances, 3)

	_, err = New(Config{TLS: &TLSClientConfig{CACert: filepath.Join(dir, "missing.crt")}})
	assert.Error(t, err)
}
