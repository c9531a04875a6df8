package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/inbound"
	"staffline/internal/messaging"
	"staffline/internal/migrate"
)

const (
	testAgency = "agency-1"
	testSecret = "test-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, opts ...func(*Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(testAgency)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	for _, id := range []string{testAgency, "agency-2"} {
		if _, err := e.EnsureAgency(context.Background(), id, "", "tester"); err != nil {
			t.Fatalf("ensure agency %s: %v", id, err)
		}
	}
	scfg := Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret},
		Inbound:  &inbound.Interpreter{Applier: e, CountryCode: "33"},
		AgencyID: testAgency,
	}
	for _, opt := range opts {
		opt(&scfg)
	}
	handler, err := New(scfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, agencyID string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, "recruiter-1", agencyID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

// seedMission creates one available candidate and a target-1 mission, then
// launches it.
func seedMission(t *testing.T, srv *testServer, auth map[string]string) (domain.Candidate, LaunchResponse) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/candidates", map[string]any{
		"first_name":   "Sophie",
		"last_name":    "Martin",
		"phone":        "06 12 34 56 78",
		"city":         "Lyon",
		"skills":       []string{"cariste"},
		"availability": "AVAILABLE",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create candidate status %d: %s", res.StatusCode, string(data))
	}
	cand := decode[domain.Candidate](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"client_name":     "Logistique Rhône",
		"title":           "Cariste de nuit",
		"location":        "Lyon",
		"target":          1,
		"required_skills": []string{"cariste"},
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	created := decode[CreateMissionResponse](t, data)
	if created.Pipeline.Status != domain.PipelineWaitingAgency {
		t.Fatalf("expected WAITING_AGENCY pipeline, got %s", created.Pipeline.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/pipelines/"+created.Pipeline.ID+"/launch", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("launch status %d: %s", res.StatusCode, string(data))
	}
	launched := decode[LaunchResponse](t, data)
	if launched.Pipeline.Status != domain.PipelineRunning || len(launched.Admitted) != 1 {
		t.Fatalf("unexpected launch result: %s", string(data))
	}
	return cand, launched
}

func TestPipelineLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, testAgency)

	_, launched := seedMission(t, srv, auth)
	participantID := launched.Admitted[0].ID

	res, body := postForm(t, client, srv.URL+"/webhooks/messages", url.Values{
		"MessageSid": {"SM100"},
		"From":       {"+33612345678"},
		"Body":       {" oui "},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("webhook status %d: %s", res.StatusCode, string(body))
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("expected text/xml, got %s", ct)
	}
	if string(body) != emptyTwiML {
		t.Fatalf("unexpected webhook body %s", string(body))
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/participants/"+participantID+"/propose", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
	}
	proposed := decode[engine.ProposeResult](t, data)
	if proposed.Pipeline.Status != domain.PipelineWaitingClient {
		t.Fatalf("expected WAITING_CLIENT, got %s", proposed.Pipeline.Status)
	}

	clients, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/clients", nil, auth)
	if clients.StatusCode != http.StatusOK {
		t.Fatalf("list clients %d: %s", clients.StatusCode, string(data))
	}
	list := decode[[]domain.Client](t, data)
	if len(list) != 1 {
		t.Fatalf("expected one client, got %d", len(list))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients/"+list[0].ID+"/portal-token", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("portal token status %d: %s", res.StatusCode, string(data))
	}
	token := decode[PortalTokenResponse](t, data).Token

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/portal/"+token, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("portal status %d: %s", res.StatusCode, string(data))
	}
	view := decode[engine.PortalView](t, data)
	if len(view.Missions) != 1 || len(view.Missions[0].Profiles) != 1 {
		t.Fatalf("expected one proposed profile, got %s", string(data))
	}
	if view.Missions[0].Profiles[0].DisplayName != "Sophie M." {
		t.Fatalf("expected partial display name, got %q", view.Missions[0].Profiles[0].DisplayName)
	}
	if strings.Contains(string(data), "0612345678") || strings.Contains(string(data), "+33612345678") {
		t.Fatalf("portal leaked candidate phone: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/portal/"+token+"/participants/"+participantID+"/validate", map[string]any{
		"comment": "Parfait",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("portal validate status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/pipelines/"+launched.Pipeline.ID, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get pipeline status %d: %s", res.StatusCode, string(data))
	}
	detail := decode[engine.PipelineDetail](t, data)
	if detail.Pipeline.Status != domain.PipelineCompleted {
		t.Fatalf("expected COMPLETED, got %s", detail.Pipeline.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/participants/"+participantID+"/refuse", nil, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict refusing a validated participant, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=pipeline.completed", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	if evts := decode[paginatedEvents](t, data); len(evts.Items) != 1 {
		t.Fatalf("expected one pipeline.completed event, got %d", len(evts.Items))
	}
}

func TestWebhookMissingFieldsIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := postForm(t, srv.Client(), srv.URL+"/webhooks/messages/"+testAgency, url.Values{
		"From": {"+33612345678"},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(body))
	}
}

func TestWebhookUnmatchedSenderIsAcknowledged(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := postForm(t, srv.Client(), srv.URL+"/webhooks/messages", url.Values{
		"MessageSid": {"SM1"},
		"From":       {"+33700000000"},
		"Body":       {"bonjour"},
	}, nil)
	if res.StatusCode != http.StatusOK || string(body) != emptyTwiML {
		t.Fatalf("expected empty ack, got %d %s", res.StatusCode, string(body))
	}
}

// twilioSignature mirrors the provider's algorithm: HMAC-SHA1 over the URL
// followed by the sorted form pairs.
func twilioSignature(token, target string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(target)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureValidation(t *testing.T) {
	const publicURL = "https://staffline.example.com"
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.Signatures = messaging.NewSignatureValidator("auth-token")
		c.PublicURL = publicURL
	})
	defer cleanup()
	form := url.Values{"MessageSid": {"SM9"}, "From": {"+33700000000"}, "Body": {"OUI"}}

	res, _ := postForm(t, srv.Client(), srv.URL+"/webhooks/messages", form, map[string]string{"X-Twilio-Signature": "bogus"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", res.StatusCode)
	}
	sig := twilioSignature("auth-token", publicURL+"/webhooks/messages", form)
	res, body := postForm(t, srv.Client(), srv.URL+"/webhooks/messages", form, map[string]string{"X-Twilio-Signature": sig})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d %s", res.StatusCode, string(body))
	}
}

func TestAuthenticationAndAgencyScope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	forged, err := IssueToken("other-secret", "recruiter-1", testAgency, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, map[string]string{"Authorization": "Bearer " + forged})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, map[string]string{"X-Actor-Id": "a", "X-Agency-Id": testAgency})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("header identity must be refused unless enabled, got %d", res.StatusCode)
	}

	_, launched := seedMission(t, srv, bearer(t, testAgency))
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/pipelines/"+launched.Pipeline.ID, nil, bearer(t, "agency-2"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected other agency to get 404, got %d %s", res.StatusCode, string(data))
	}

	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), testAgency, "import-bot", "imports", "tester")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/pipelines/"+launched.Pipeline.ID, nil, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key request status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, map[string]string{"X-Api-Key": plain + "x"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown api key, got %d", res.StatusCode)
	}
}

func TestPortalErrorsHideDetails(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/portal/not-a-token", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown token, got %d %s", res.StatusCode, string(data))
	}
	body := decode[errorEnvelope](t, data)
	if body.Error.Code != "access_denied" || body.Error.Details != nil {
		t.Fatalf("unexpected portal error envelope %s", string(data))
	}

	auth := bearer(t, testAgency)
	_, launched := seedMission(t, srv, auth)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": "Autre Client"}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create client %d: %s", res.StatusCode, string(data))
	}
	other := decode[domain.Client](t, data)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients/"+other.ID+"/portal-token", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("portal token %d: %s", res.StatusCode, string(data))
	}
	token := decode[PortalTokenResponse](t, data).Token
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/portal/"+token+"/participants/"+launched.Admitted[0].ID+"/validate", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 deciding on another client's participant, got %d %s", res.StatusCode, string(data))
	}
}

func TestWrongStateIsConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, testAgency)
	_, launched := seedMission(t, srv, auth)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/participants/"+launched.Admitted[0].ID+"/validate", nil, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 validating an unproposed participant, got %d %s", res.StatusCode, string(data))
	}
	body := decode[errorEnvelope](t, data)
	if body.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", body.Error.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/missions/"+launched.Pipeline.MissionID, nil, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting a mission with active outreach, got %d %s", res.StatusCode, string(data))
	}
}

func TestDecisionsAcceptEmptyBody(t *testing.T) {
	t.Run("agency validate", func(t *testing.T) {
		srv, cleanup := newTestServer(t)
		defer cleanup()
		auth := bearer(t, testAgency)
		_, launched := seedMission(t, srv, auth)
		id := launched.Admitted[0].ID

		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/participants/"+id+"/propose", nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
		}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/participants/"+id+"/validate", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", auth["Authorization"])
		res, err = srv.Client().Do(req)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		data, _ = io.ReadAll(res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("validate without body status %d: %s", res.StatusCode, string(data))
		}
		got := decode[engine.RespondResult](t, data)
		if got.Pipeline.Status != domain.PipelineCompleted || !got.Participant.ClientValidated {
			t.Fatalf("expected validated participant and COMPLETED pipeline, got %s", string(data))
		}
	})

	t.Run("portal refuse", func(t *testing.T) {
		srv, cleanup := newTestServer(t)
		defer cleanup()
		client := srv.Client()
		auth := bearer(t, testAgency)
		_, launched := seedMission(t, srv, auth)
		id := launched.Admitted[0].ID

		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/participants/"+id+"/propose", nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
		}
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/clients", nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list clients %d: %s", res.StatusCode, string(data))
		}
		owner := decode[[]domain.Client](t, data)[0]
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients/"+owner.ID+"/portal-token", nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("portal token status %d: %s", res.StatusCode, string(data))
		}
		token := decode[PortalTokenResponse](t, data).Token

		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/portal/"+token+"/participants/"+id+"/refuse", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("portal refuse without body status %d: %s", res.StatusCode, string(data))
		}
		p, err := srv.Engine.Repo.GetParticipant(context.Background(), nil, testAgency, id)
		if err != nil {
			t.Fatalf("get participant: %v", err)
		}
		if !p.ClientRefused || p.ClientValidated {
			t.Fatalf("expected refused participant, got %+v", p)
		}
	})
}

func TestInternalErrorsAreLoggedNotReturned(t *testing.T) {
	core, observed := observer.New(zapcore.ErrorLevel)
	ctx := context.WithValue(context.Background(), loggerKey{}, zap.New(core))

	serr := handleError(ctx, errors.New("database is locked: /var/lib/staffline/staffline.db"))
	apiErr, ok := serr.(*apiError)
	if !ok {
		t.Fatalf("expected *apiError, got %T", serr)
	}
	if apiErr.GetStatus() != http.StatusInternalServerError || apiErr.Body.Code != "internal_error" {
		t.Fatalf("unexpected error %+v", apiErr.Body)
	}
	if apiErr.Body.Details != nil || strings.Contains(apiErr.Body.Message, "staffline.db") {
		t.Fatalf("internal detail leaked to the client: %+v", apiErr.Body)
	}
	entries := observed.FilterMessage("request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected the cause to be logged once, got %+v", observed.All())
	}
	if cause, _ := entries[0].ContextMap()["error"].(string); !strings.Contains(cause, "database is locked") {
		t.Fatalf("expected the cause to be logged, got %+v", observed.All())
	}
}
