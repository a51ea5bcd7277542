package httpapi_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	brokerlocal "github.com/romanqed/qjazz/broker/local"
	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/httpapi"
	"github.com/romanqed/qjazz/httpapi/accesspolicy"
	"github.com/romanqed/qjazz/process"
	registrylocal "github.com/romanqed/qjazz/registry/local"
	registrysql "github.com/romanqed/qjazz/registry/sql"
	resultstoresql "github.com/romanqed/qjazz/resultstore/sql"
	storagelocal "github.com/romanqed/qjazz/storage/local"
	"github.com/romanqed/qjazz/worker"
)

func echoCatalogue() process.Catalogue {
	return process.Catalogue{
		"echo": {
			Descriptor: process.Descriptor{
				ID: "echo",
				Inputs: map[string]process.InputDescription{
					"msg": {MinOccurs: 1, MaxOccurs: 1},
				},
				JobControlOptions: []process.JobControlOption{
					process.SyncExecute, process.AsyncExecute, process.Dismiss,
				},
			},
			Func: func(ctx context.Context, request process.Request, feedback process.Feedback, jctx *process.JobContext) (process.Result, error) {
				raw, ok := request.Inputs["msg"]
				if !ok {
					return process.Result{}, &process.InputValueError{Message: "missing msg"}
				}
				var msg string
				if err := json.Unmarshal(raw, &msg); err != nil {
					return process.Result{}, &process.InputValueError{Message: "msg must be a string"}
				}
				out, _ := json.Marshal(msg)
				return process.Result{Outputs: map[string]json.RawMessage{"output": out}}, nil
			},
		},
	}
}

// slowCatalogue holds a job in the running state for two seconds (or
// until its context ends), used to exercise dismissal of a running job.
func slowCatalogue() process.Catalogue {
	return process.Catalogue{
		"slow": {
			Descriptor: process.Descriptor{
				ID:                "slow",
				JobControlOptions: []process.JobControlOption{process.AsyncExecute, process.Dismiss},
			},
			Func: func(ctx context.Context, request process.Request, feedback process.Feedback, jctx *process.JobContext) (process.Result, error) {
				select {
				case <-ctx.Done():
					return process.Result{}, ctx.Err()
				case <-time.After(2 * time.Second):
				}
				return process.Result{Outputs: map[string]json.RawMessage{}}, nil
			},
		},
	}
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	require.NoError(t, registrysql.InitDB(context.Background(), db))
	require.NoError(t, resultstoresql.InitDB(context.Background(), db))
	return db
}

// newTestGateway wires one worker (bound to catalogue) and the
// executor/gateway stack on top of it, all sharing an in-process
// broker, and returns an httptest.Server ready to receive requests.
func newTestGateway(t *testing.T, catalogue process.Catalogue) *httptest.Server {
	return newTestGatewayService(t, catalogue, "demo")
}

func newTestGatewayService(t *testing.T, catalogue process.Catalogue, defaultService string) *httptest.Server {
	t.Helper()
	db := newTestDB(t)
	reg := registrysql.NewStore(db)
	results := resultstoresql.NewStore(db)
	locker := registrylocal.NewLocker()
	store, err := storagelocal.New(t.TempDir(), "")
	require.NoError(t, err)

	b := brokerlocal.New(32)

	wcfg := worker.Config{
		ServiceName:           "demo",
		WorkDir:                t.TempDir(),
		Concurrency:            2,
		QueueSize:              32,
		CleanupInterval:        time.Hour,
		ResultExpires:          time.Hour,
		CleanupLockTimeout:     time.Second,
		ProgressFlushInterval:  10 * time.Millisecond,
	}
	w := worker.New("demo-1", wcfg, b, reg, locker, results, store, nil, catalogue, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))

	exec := executor.New(b, reg, locker, results, executor.Config{
		MessageExpirationTimeout: 5 * time.Second,
		UpdateInterval:           20 * time.Millisecond,
		DismissTimeout:           time.Second,
		RevokeTimeout:            time.Second,
		InspectTimeout:           time.Second,
	}, nil)
	require.NoError(t, exec.Start(ctx))
	require.NoError(t, exec.UpdateServices(ctx))

	ts := httptest.NewServer(httpapi.NewRouter(httpapi.Config{
		Executor:       exec,
		Policy:         accesspolicy.AllowAll{},
		RealmEnabled:   false,
		DefaultService: defaultService,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSyncExecuteHappyPath(t *testing.T) {
	ts := newTestGateway(t, echoCatalogue())

	body := bytes.NewBufferString(`{"inputs":{"msg":"hi"}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/processes/echo/execution", body)
	require.NoError(t, err)
	req.Header.Set("Prefer", "respond-async=false, wait=5")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Job-Id"))

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "hi", out["output"])
}

func TestAsyncExecuteThenPoll(t *testing.T) {
	ts := newTestGateway(t, echoCatalogue())

	body := bytes.NewBufferString(`{"inputs":{"msg":"async"}}`)
	resp, err := http.Post(ts.URL+"/processes/echo/execution", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := resp.Header.Get("X-Job-Id")
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(2 * time.Second)
	var status map[string]any
	for time.Now().Before(deadline) {
		r, err := http.Get(ts.URL + "/jobs/" + jobID)
		require.NoError(t, err)
		json.NewDecoder(r.Body).Decode(&status)
		r.Body.Close()
		if status["status"] == "successful" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, "successful", status["status"])

	r, err := http.Get(ts.URL + "/jobs/" + jobID + "/results")
	require.NoError(t, err)
	defer r.Body.Close()
	var results map[string]string
	require.NoError(t, json.NewDecoder(r.Body).Decode(&results))
	require.Equal(t, "async", results["output"])
}

func TestUnknownProcessNotFound(t *testing.T) {
	ts := newTestGateway(t, echoCatalogue())

	resp, err := http.Post(ts.URL+"/processes/nope/execution", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceNotAvailable(t *testing.T) {
	ts := newTestGatewayService(t, echoCatalogue(), "nope")

	resp, err := http.Post(ts.URL+"/processes/foo/execution", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var problem map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, "Service not known", problem["message"])
}

func TestDismissRunningJob(t *testing.T) {
	ts := newTestGateway(t, slowCatalogue())

	resp, err := http.Post(ts.URL+"/processes/slow/execution", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := resp.Header.Get("X-Job-Id")
	require.NotEmpty(t, jobID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/jobs/"+jobID, nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dresp.Body.Close()
	require.Equal(t, http.StatusOK, dresp.StatusCode)
}
