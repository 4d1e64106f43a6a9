package embedded

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	promcl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/docstoretest"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
)

// unix socket paths are length limited, so t.TempDir() is too deep
func socketDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "fittrack-emb")
	require.NoError(t, err)
	t.Cleanup(func() {
		if rErr := os.RemoveAll(dir); rErr != nil {
			t.Error(rErr)
		}
	})
	return dir
}

func startHost(t *testing.T, cfg HostConfig, metricsManager *metrics.Manager) (*Host, string) {
	host, err := NewHost(cfg, metricsManager)
	require.NoError(t, err)

	socket := filepath.Join(socketDir(t), fmt.Sprintf("%d.sock", os.Getpid()))
	_, err = host.Listen(context.Background(), socket)
	require.NoError(t, err)
	return host, socket
}

func TestClient_StoreSuite(t *testing.T) {
	docstoretest.RunStoreSuite(t, func(t *testing.T) docstore.Store {
		host, socket := startHost(t, HostConfig{InMemory: true}, metrics.NewTestManager())
		t.Cleanup(func() {
			assert.NoError(t, host.Close())
		})
		return NewClient(socket)
	})
}

func TestClient_HostNotRunning(t *testing.T) {
	client := NewClient(filepath.Join(socketDir(t), "missing.sock"))
	ctx := context.Background()

	err := client.Ping(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrBackendUnavailable)

	_, err = client.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrBackendUnavailable)
	assert.True(t, docstore.IsReadFailure(err))

	_, err = client.Insert(ctx, docstore.CollectionTraining, docstore.Document{"a": 1})
	require.Error(t, err)
	assert.True(t, docstore.IsWriteFailure(err))

	// unknown collections fail before any dial
	_, err = client.Find(ctx, "workouts", docstore.Query{})
	assert.ErrorIs(t, err, docstore.ErrCollectionNotFound)
}

func TestHost_PersistsAcrossRestarts(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	host, socket := startHost(t, HostConfig{DataDir: dataDir, SyncWrites: true}, nil)
	client := NewClient(socket)
	require.NoError(t, client.Ping(ctx))

	inserted, err := client.Insert(ctx, docstore.CollectionMetrics, docstore.Document{
		"date":     "2024-02-02",
		"weightKg": 80.5,
	})
	require.NoError(t, err)
	require.NoError(t, host.Close())

	for _, coll := range docstore.Collections {
		info, err := os.Stat(filepath.Join(dataDir, coll))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	host, socket = startHost(t, HostConfig{DataDir: dataDir}, nil)
	defer func() {
		assert.NoError(t, host.Close())
	}()
	client = NewClient(socket)

	found, err := client.Find(ctx, docstore.CollectionMetrics, docstore.Query{docstore.FieldID: inserted.ID()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.EqualValues(t, 80.5, found[0]["weightKg"])
}

func TestHost_MessageMetrics(t *testing.T) {
	metricsManager, reg := metrics.NewTestManagerAndRegistry()
	host, socket := startHost(t, HostConfig{InMemory: true}, metricsManager)
	defer func() {
		assert.NoError(t, host.Close())
	}()
	client := NewClient(socket)
	ctx := context.Background()

	_, err := client.Insert(ctx, docstore.CollectionTraining, docstore.Document{"activity": "Squat"})
	require.NoError(t, err)
	_, err = client.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "fittrack_test_host_message_duration_seconds")
	require.NoError(t, err)
	// one series per op
	assert.Equal(t, 2, count)

	gathered, err := reg.Gather()
	require.NoError(t, err)
	var durations *promcl.MetricFamily
	for _, m := range gathered {
		if m.GetName() == "fittrack_test_host_message_duration_seconds" {
			durations = m
			break
		}
	}
	require.NotNil(t, durations)
	require.Len(t, durations.Metric, 2)
	for _, m := range durations.Metric {
		require.NotNil(t, m.Histogram)
		assert.Equal(t, uint64(1), m.Histogram.GetSampleCount())
	}
}

func TestHost_InvalidMessage(t *testing.T) {
	host, socket := startHost(t, HostConfig{InMemory: true}, nil)
	defer func() {
		assert.NoError(t, host.Close())
	}()

	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, docstore.CodeBadRequest, resp.Code)
	assert.NotEmpty(t, resp.Error)
}

func TestHost_UnknownOp(t *testing.T) {
	host, err := NewHost(HostConfig{InMemory: true}, nil)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, host.Close())
	}()

	resp := host.handle(request{Op: "drop", Collection: docstore.CollectionTraining})
	assert.Equal(t, docstore.CodeBadRequest, resp.Code)

	resp = host.handle(request{Op: docstore.OpFind, Collection: "workouts"})
	assert.Equal(t, docstore.CodeCollectionNotFound, resp.Code)

	resp = host.handle(request{Op: docstore.OpPing})
	assert.Empty(t, resp.Code)
}

func TestHost_ClosedContextStopsListener(t *testing.T) {
	host, err := NewHost(HostConfig{InMemory: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	socket := filepath.Join(socketDir(t), "ctx.sock")
	_, err = host.Listen(ctx, socket)
	require.NoError(t, err)

	client := NewClient(socket)
	require.NoError(t, client.Ping(context.Background()))

	cancel()
	assert.Eventually(t, func() bool {
		return client.Ping(context.Background()) != nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, host.Close())
}
