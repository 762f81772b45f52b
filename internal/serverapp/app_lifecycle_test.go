package serverapp

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"salesql/internal/config"
	"salesql/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.Discard()
}

func TestWaitForStop(t *testing.T) {
	app := &App{logger: testLogger()}

	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM
	reason, err := app.WaitForStop(stop, make(chan error))
	require.NoError(t, err)
	assert.Equal(t, StopReasonSignal, reason)

	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")
	reason, err = app.WaitForStop(make(chan os.Signal), serverErrors)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, StopReasonServerError, reason)

	serverErrors <- errors.New("listen failed")
	reason, err = app.WaitForStop(nil, serverErrors)
	assert.Error(t, err)
	assert.Equal(t, StopReasonServerError, reason)

	_, err = app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestShutdown_IdempotentAndLIFO(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	var order []string
	app.cleanup.push("first", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		order = append(order, "first")
		return nil
	})
	app.cleanup.push("second", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		order = append(order, "second")
		return errors.New("logged, not fatal")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	errs, err := app.Start()
	require.NoError(t, err)
	again, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, errs, again)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "salesql",
			Password: "invalid",
			Database: "sales",
			SSLMode:  "disable",
			Schema:   "public",
			Pool: config.PoolConfig{
				MaxOpen:     1,
				MaxIdle:     1,
				MaxLifetime: time.Second,
			},
		},
		Server: config.ServerConfig{
			Port:               18089,
			HealthCheckTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "salesql",
			Logging:     config.LoggingConfig{Level: "info", Format: "text"},
		},
	}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Error(t, app.Init(context.Background()))

	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	assert.False(t, app.initialized)
	assert.Empty(t, app.cleanup)
}

func TestWaitForDatabase_RetriesWithBackoff(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		ConnectionTimeout:       2 * time.Second,
		ConnectionRetryInterval: time.Millisecond,
	}
	attempts := 0
	err := waitForDatabase(context.Background(), dbCfg, testLogger(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWaitForDatabase_SingleAttemptWithoutTimeout(t *testing.T) {
	attempts := 0
	err := waitForDatabase(context.Background(), config.DatabaseConfig{}, testLogger(), func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWaitForDatabase_GivesUpAfterTimeout(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		ConnectionTimeout:       50 * time.Millisecond,
		ConnectionRetryInterval: 5 * time.Millisecond,
	}
	err := waitForDatabase(context.Background(), dbCfg, testLogger(), func(context.Context) error {
		return errors.New("connection refused")
	})
	assert.ErrorContains(t, err, "database not available")
}
