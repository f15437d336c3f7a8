package execution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server on a random port.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()

	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err, "create NATS server")

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSSinkPublishesRecord(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	sub, err := nc.SubscribeSync("ucr.executions.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sink, err := NewNATSSink(nc, "")
	require.NoError(t, err)

	rec := ExecutionRecord{
		ID:              "rec-1",
		ContextID:       "ctx-acme",
		TenantID:        "tenant-acme",
		UserID:          "user-1",
		ModuleID:        "category-visibility",
		Status:          "complete",
		Confidence:      0.67,
		Recommendations: []string{"Add demand keywords for blenders"},
		SnapshotHash:    "abc123",
		CreatedAt:       testNow,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Publish(ctx, rec))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ucr.executions.tenant-acme.ctx-acme", msg.Subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "ctx-acme", got["context_id"])
	assert.Equal(t, "abc123", got["snapshot_hash"])
	assert.Equal(t, "category-visibility", got["module_id"])
	assert.NotContains(t, got, "synthesis")
}

func TestNATSSinkWithoutDeadline(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	sink, err := NewNATSSink(nc, "audit.runs.")
	require.NoError(t, err)
	assert.NoError(t, sink.Publish(context.Background(), ExecutionRecord{TenantID: "t", ContextID: "c"}))
}

func TestNATSSinkClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	sink, err := NewNATSSink(nc, "")
	require.NoError(t, err)
	err = sink.Publish(context.Background(), ExecutionRecord{TenantID: "t", ContextID: "c"})
	assert.ErrorContains(t, err, "publish execution record")
}

func TestNATSSinkSubject(t *testing.T) {
	_, err := NewNATSSink(nil, "")
	assert.Error(t, err)

	sink := &NATSSink{prefix: "audit"}
	assert.Equal(t, "audit.acme_corp.ctx_1", sink.Subject(ExecutionRecord{TenantID: "acme.corp", ContextID: "ctx 1"}))
	assert.Equal(t, "audit._._", sink.Subject(ExecutionRecord{}))
}
