package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	httpserver "github.com/pisanocami/usercontextrecord-sub002/internal/http"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
)

type staticReasoner string

func (r staticReasoner) Complete(context.Context, string) (string, error) {
	return string(r), nil
}

// ExampleNewServer wires the engine behind the HTTP API.
func ExampleNewServer() {
	logger := zap.NewNop()

	st := store.NewMemoryStore()
	catalog, err := council.DefaultCatalog()
	if err != nil {
		panic(err)
	}
	councils, err := council.NewService(catalog, staticReasoner(`{"summary":"ok"}`))
	if err != nil {
		panic(err)
	}
	gate := snapshot.NewGate(st, snapshot.WithLogger(logger))
	engine := guardrails.NewEngine()
	executor, err := execution.NewService(gate, modules.NewDefaultRegistry(), councils, engine)
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(httpserver.Deps{
		Store:    st,
		Gate:     gate,
		Councils: councils,
		Executor: executor,
		Engine:   engine,
	}, logger, &httpserver.Config{Host: "localhost", Port: 8080})
	if err != nil {
		panic(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/modules/strategic-fit/execute", nil)
	req.Header.Set(httpserver.HeaderTenantID, "tenant-acme")
	req.Header.Set(httpserver.HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	fmt.Println(rec.Code)
	// Output: 403
}
