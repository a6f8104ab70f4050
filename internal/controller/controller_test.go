package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyggeo/campaign-service/internal/controller"
	"github.com/hyggeo/campaign-service/internal/handler"
	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/metrics"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/queue"
	"github.com/hyggeo/campaign-service/internal/repository/memory"
	"github.com/hyggeo/campaign-service/internal/service"
)

type okMailer struct{}

func (okMailer) Send(ctx context.Context, msg mailer.Message) error { return nil }

type testServer struct {
	*httptest.Server
	store *memory.Store
	queue *queue.InMemoryQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	log := zerolog.Nop()
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	q := queue.NewInMemoryQueue(log)

	campaigns := &service.CampaignService{
		Campaigns:  store,
		Templates:  store,
		Logs:       store,
		Users:      store,
		Resolver:   service.NewRecipientResolver(store),
		Dispatcher: service.NewDispatcher(okMailer{}, store, 2, 0, mt, log),
		Queue:      q,
		Metrics:    mt,
		BaseURL:    "https://hyggeo.com",
		Log:        log,
	}

	router := controller.NewRouter(controller.RouterDeps{
		Campaigns: &controller.CampaignController{CampaignService: campaigns},
		Templates: &controller.TemplateController{TemplateService: service.NewTemplateService(store, log)},
		Public:    &handler.PublicHandler{Subscriptions: &service.SubscriptionService{Users: store, Log: log}},
		Gatherer:  reg,
		Log:       log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, queue: q}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (s *testServer) createTemplate(t *testing.T) int64 {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/templates", map[string]any{
		"name":         "Welcome",
		"subject":      "Hi {{first_name}}",
		"html_content": "<p>Hi {{first_name}}</p>",
		"text_content": "Hi {{first_name}}",
		"category":     "welcome",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(body["id"].(float64))
}

func (s *testServer) createCampaign(t *testing.T, templateID int64, audience map[string]any) int64 {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/campaigns", map[string]any{
		"name":        "Spring",
		"template_id": templateID,
		"audience":    audience,
		"mode":        "live",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(body["id"].(float64))
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.store.AddUser(model.User{Username: "astrid", FirstName: "Astrid", Email: "astrid@example.com", IsActive: true, EmailConsent: true})

	tmplID := s.createTemplate(t)
	id := s.createCampaign(t, tmplID, map[string]any{"kind": "all"})
	path := "/campaigns/" + itoa(id)

	resp, body := s.do(t, http.MethodPost, path+"/preview", map[string]any{"user_id": u.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg := body["message"].(map[string]any)
	assert.Equal(t, "Hi Astrid", msg["subject"])

	resp, body = s.do(t, http.MethodPost, path+"/send", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sent", body["status"])
	assert.Equal(t, 1.0, body["sent_count"])

	resp, body = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, 1.0, stats["sent"])
	assert.Equal(t, 1.0, stats["total"])

	resp, body = s.do(t, http.MethodGet, path+"/logs?status=sent", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	// A second send conflicts, and nothing failed so there is nothing to resend.
	resp, body = s.do(t, http.MethodPost, path+"/send", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "cannot move from sent")

	resp, _ = s.do(t, http.MethodPost, path+"/resend-failed", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, path, map[string]any{"name": "x", "template_id": tmplID, "audience": map[string]any{"kind": "all"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	tmplID := s.createTemplate(t)
	emptyID := s.createCampaign(t, tmplID, map[string]any{"kind": "segment", "segment": "staff"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"validation", http.MethodPost, "/templates", map[string]any{"name": "x", "subject": "y", "html_content": "<p/>", "text_content": ""}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/campaigns", "{", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/campaigns/abc", nil, http.StatusBadRequest},
		{"missing campaign", http.MethodGet, "/campaigns/999", nil, http.StatusNotFound},
		{"missing template", http.MethodGet, "/templates/999", nil, http.StatusNotFound},
		{"empty audience", http.MethodPost, "/campaigns/" + itoa(emptyID) + "/send", nil, http.StatusConflict},
		{"bad status filter", http.MethodGet, "/campaigns?status=bogus", nil, http.StatusBadRequest},
		{"unknown token", http.MethodGet, "/unsubscribe/nope/", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, handler.StatusFor(errors.New("boom")))
}

func TestListCampaignsPaginationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tmplID := s.createTemplate(t)
	for i := 0; i < 3; i++ {
		s.createCampaign(t, tmplID, map[string]any{"kind": "all"})
	}

	resp, body := s.do(t, http.MethodGet, "/campaigns?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, map[string]any{
		"page":        2.0,
		"page_size":   2.0,
		"total_count": 3.0,
		"total_pages": 2.0,
	}, body["pagination"])
}

func TestScheduleAndUnscheduleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createCampaign(t, s.createTemplate(t), map[string]any{"kind": "all"})
	path := "/campaigns/" + itoa(id)

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp, body := s.do(t, http.MethodPost, path+"/schedule", map[string]any{"scheduled_send": at})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scheduled", body["status"])

	resp, body = s.do(t, http.MethodPost, path+"/unschedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "draft", body["status"])

	resp, _ = s.do(t, http.MethodPost, path+"/schedule", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsyncSendPublishesJob(t *testing.T) {
	s := newTestServer(t)
	s.store.AddUser(model.User{Username: "astrid", Email: "astrid@example.com", IsActive: true})
	id := s.createCampaign(t, s.createTemplate(t), map[string]any{"kind": "all"})

	received := make(chan []byte, 1)
	require.NoError(t, s.queue.Subscribe(context.Background(), queue.CampaignSendsTopic, func(ctx context.Context, body []byte) error {
		received <- body
		return nil
	}))

	resp, body := s.do(t, http.MethodPost, "/campaigns/"+itoa(id)+"/send?async=true", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])

	select {
	case job := <-received:
		assert.JSONEq(t, `{"campaign_id":`+itoa(id)+`}`, string(job))
	case <-time.After(time.Second):
		t.Fatal("send job was not published")
	}
}

func TestTemplateCRUDOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createTemplate(t)
	path := "/templates/" + itoa(id)

	resp, body := s.do(t, http.MethodPut, path, map[string]any{
		"name":         "Welcome v2",
		"subject":      "Hello",
		"html_content": "<p>Hello</p>",
		"text_content": "Hello",
		"category":     "welcome",
		"is_active":    false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_active"])

	resp, body = s.do(t, http.MethodGet, "/templates?category=welcome", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, _ = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnsubscribeAndHealth(t *testing.T) {
	s := newTestServer(t)
	u := s.store.AddUser(model.User{Username: "astrid", Email: "astrid@example.com", IsActive: true, EmailConsent: true})

	resp, body := s.do(t, http.MethodGet, "/unsubscribe/"+u.UnsubscribeToken+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["unsubscribed"])

	stored, err := s.store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailConsent)

	resp, body = s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
