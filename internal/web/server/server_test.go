package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig(okHandler())

	assert.Equal(t, ":8080", config.Address)
	assert.Equal(t, 15*time.Second, config.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.IdleTimeout)
	assert.Equal(t, 1<<20, config.MaxHeaderBytes)
}

func TestNewServerErrors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)
}

func TestServerStartShutdown(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:0"
	srv, err := New(config)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	require.NoError(t, srv.Listen())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestGracefulShutdownRun(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:0"
	srv, err := New(config)
	require.NoError(t, err)

	gs := NewGracefulShutdown(srv, &ShutdownConfig{Timeout: 5 * time.Second, Logger: zaptest.NewLogger(t)})

	var mu sync.Mutex
	var order []string
	gs.RegisterHook(func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "first")
		return errors.New("ignored")
	})
	gs.RegisterHook(func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	assert.NoError(t, gs.Wait())
	assert.NoError(t, gs.Shutdown())
	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, order)
	mu.Unlock()
}

func TestGracefulShutdownListenError(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "256.0.0.1:bad"
	srv, err := New(config)
	require.NoError(t, err)

	gs := NewGracefulShutdown(srv, nil)
	assert.Error(t, gs.Run(context.Background()))
}
