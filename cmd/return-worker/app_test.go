package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/auth/oauthsession"
	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/cache/memcache"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier/trackhttp"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/notify"
	"github.com/BearBump/ReturnBox/internal/services/tracking"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestDefaultWorkerFactories_SelectCarrierClient(t *testing.T) {
	f := defaultWorkerFactories()

	c1 := f.newCarrierClient(&config.Config{Tracking: config.TrackingConfig{Mode: "http", APIKey: "k"}})
	_, ok := c1.(*trackhttp.Client)
	require.True(t, ok)

	c2 := f.newCarrierClient(&config.Config{Tracking: config.TrackingConfig{Mode: "http"}})
	_, ok = c2.(*fake.FakeClient)
	require.True(t, ok)

	c3 := f.newCarrierClient(&config.Config{Tracking: config.TrackingConfig{Mode: "fake", APIKey: "k"}})
	_, ok = c3.(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_CacheAndDeliverer(t *testing.T) {
	f := defaultWorkerFactories()

	c, rl, closeFn := f.newCache(&config.Config{})
	_, ok := c.(*memcache.Cache)
	require.True(t, ok)
	require.Nil(t, rl)
	closeFn()

	mr := miniredis.RunT(t)
	c, rl, closeFn = f.newCache(&config.Config{Redis: config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}})
	_, ok = c.(*rediscache.RedisCache)
	require.True(t, ok)
	require.NotNil(t, rl)
	closeFn()

	d, closeD := f.newDeliverer(&config.Config{})
	_, ok = d.(notify.LogDeliverer)
	require.True(t, ok)
	closeD()

	d, closeD = f.newDeliverer(&config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}})
	_, ok = d.(*notify.BrokerDeliverer)
	require.True(t, ok)
	closeD()
}

func TestDefaultWorkerFactories_StorageWithRedisSeenSet(t *testing.T) {
	f := defaultWorkerFactories()
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: "file", Dir: t.TempDir()},
		Redis:   config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr), UseForSeen: true},
	}
	st, seen, closeFn, err := f.newStorage(cfg)
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, st)

	_, ok := seen.(*rediscache.SeenSet)
	require.True(t, ok)
	require.NoError(t, seen.Add(context.Background(), "m1"))
	require.True(t, mr.Exists("returnbox:seen_messages"))
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}

func testFactories(t *testing.T) workerFactories {
	keyring.MockInit()
	base := defaultWorkerFactories()
	return workerFactories{
		newStorage: base.newStorage,
		newCache: func(cfg *config.Config) (cache.BytesCache, tracking.RateLimiter, func()) {
			return memcache.New(), nil, func() {}
		},
		newDeliverer: func(cfg *config.Config) (notify.Deliverer, func()) {
			return notify.LogDeliverer{}, func() {}
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			return fake.New()
		},
		newSessionStore: func(cfg *config.Config) oauthsession.Store {
			return oauthsession.NewKeyringStore("returnbox-test")
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Storage:   config.StorageConfig{Driver: "file", Dir: t.TempDir()},
		ReturnBox: config.ReturnBoxConfig{HTTPAddr: "127.0.0.1:0"},
	}
}

func TestRunReturnWorker_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunReturnWorker(ctx, testConfig(t), testFactories(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkerRouter_ItemsAndStats(t *testing.T) {
	ctx := context.Background()
	w, closeFn, err := buildWorker(ctx, testConfig(t), testFactories(t))
	require.NoError(t, err)
	defer closeFn()

	srv := httptest.NewServer(newWorkerRouter(workerHTTPOpts{w: w}))
	defer srv.Close()

	tn := "1Z999AA10123456784"
	body, _ := json.Marshal(models.TrackedItem{Retailer: "Nike", ProductName: "Air Max", TrackingNumber: &tn})
	resp, err := http.Post(srv.URL+"/items", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.TrackedItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.RefundStatusPending, created.RefundStatus)

	persisted, err := w.store.LoadItems(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	resp, err = http.Get(srv.URL + "/items/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	require.Equal(t, float64(1), stats["items"])
	require.Equal(t, false, stats["inboxSession"])

	resp, err = http.Get(srv.URL + "/candidates")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/items/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, 0, w.list.Len())
}

func TestWorkerRouter_TriggerRunsSync(t *testing.T) {
	ctx := context.Background()
	w, closeFn, err := buildWorker(ctx, testConfig(t), testFactories(t))
	require.NoError(t, err)
	defer closeFn()

	srv := httptest.NewServer(newWorkerRouter(workerHTTPOpts{w: w}))
	defer srv.Close()

	// job ещё не зарегистрирован
	resp, err := http.Post(srv.URL+"/trigger", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()

	require.NoError(t, w.supervisor.Register())
	resp, err = http.Post(srv.URL+"/trigger", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		return w.host.Stats().Succeeded == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NotNil(t, w.coordinator.LastResult())

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, buf.String(), `returnbox_sync_runs_total{result="success"} 1`)
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(&buf, "nope", "").Debug("dropped")
	require.Empty(t, buf.String())
}
