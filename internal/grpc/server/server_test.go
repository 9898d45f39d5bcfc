package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/EternisAI/vconnector/internal/grpc/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startBufServer(t *testing.T) (*Server, *client.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(0, nil)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() { _ = srv.StopWithTimeout(time.Second) })

	hc, err := client.NewHealthClient("passthrough:///bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hc.Close() })
	return srv, hc
}

func TestHealthCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, hc := startBufServer(t)

	status, err := hc.Check(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", status)

	status, err = hc.Check(ctx, StoreService)
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", status)

	srv.SetServing(StoreService, true)
	status, err = hc.Check(ctx, StoreService)
	require.NoError(t, err)
	assert.Equal(t, "SERVING", status)

	_, err = hc.Check(ctx, "unknown")
	assert.Error(t, err)
}

func TestWatchStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, hc := startBufServer(t)

	watchCtx, stopWatch := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.WatchStore(watchCtx, 10*time.Millisecond, func(context.Context) error { return nil })
	}()

	assert.Eventually(t, func() bool {
		status, err := hc.Check(ctx, StoreService)
		return err == nil && status == "SERVING"
	}, 2*time.Second, 10*time.Millisecond)

	stopWatch()
	<-done

	srv.WatchStore(canceled(), time.Hour, func(context.Context) error { return errors.New("db down") })
	status, err := hc.Check(ctx, StoreService)
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", status)
}

func TestServeInvalidClientAuth(t *testing.T) {
	srv := NewServer(0, &TLSConfig{Enabled: true, ClientAuth: "sometimes"})
	err := srv.Serve(bufconn.Listen(1024))
	assert.ErrorContains(t, err, "invalid client auth type")
}

func TestStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(0, nil).StopWithTimeout(time.Second))
}

func canceled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
