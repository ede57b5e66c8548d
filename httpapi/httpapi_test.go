package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/httpapi"
	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/llmclient"
	_ "github.com/planforge/finmodel/llmclient/providers"
	"github.com/planforge/finmodel/model"
	"github.com/planforge/finmodel/pipeline"
	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

type testEnv struct {
	server *httptest.Server
	store  store.Store
}

func newTestEnv(t *testing.T, providerResponse string) *testEnv {
	t.Helper()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"message": map[string]string{"content": providerResponse},
			"done":    true,
		})
	}))
	t.Cleanup(provider.Close)

	registry := model.NewRegistry(
		map[model.Tier]*model.TierConfig{
			model.Standard: {Description: "test tier", Preferred: []string{"test-endpoint"}},
		},
		map[string]*model.EndpointConfig{
			"test-endpoint": {Provider: "ollama", URL: provider.URL, Model: "test-model"},
		},
		"test-endpoint",
	)
	client := llmclient.NewClient(registry)

	prompts := promptregistry.NewRegistry()
	promptregistry.RegisterDefaults(prompts)

	s := store.NewMemStore()
	runner := jobrunner.NewRunner(s, jobrunner.DefaultConfig())
	executor := jobrunner.NewInProcessExecutor(runner, 2)
	t.Cleanup(func() { executor.Close() })

	controller := pipeline.NewController(s, executor, client, prompts, model.Standard)
	apiServer := httpapi.NewServer(s, controller, prompts)

	mux := http.NewServeMux()
	apiServer.RegisterHTTPHandlers("/", mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: s}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, r *http.Response, dest any) {
	t.Helper()
	defer r.Body.Close()
	require.NoError(t, json.NewDecoder(r.Body).Decode(dest))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "finmodel_http_requests_total")
}

func TestCreateAndGetProject(t *testing.T) {
	env := newTestEnv(t, `{}`)

	resp := env.post(t, "/v1/projects", map[string]string{"name": "Acme Model"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created store.Project
	decodeJSON(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp2, err := http.Get(env.server.URL + "/v1/projects/" + created.ID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestGetProject_UnknownIDReturnsProjectNotFound(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp, err := http.Get(env.server.URL + "/v1/projects/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Detail struct {
			Code string `json:"code"`
		} `json:"detail"`
	}
	decodeJSON(t, resp, &body)
	require.Equal(t, "PROJECT_NOT_FOUND", body.Detail.Code)
}

func TestCreateProject_MissingNameReturnsValidationError(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp := env.post(t, "/v1/projects", map[string]string{})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func uploadTextDocument(t *testing.T, env *testEnv, projectID, text string) string {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("project_id", projectID))
	require.NoError(t, w.WriteField("kind", "text"))
	require.NoError(t, w.WriteField("text", text))
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/documents/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	return body["id"].(string)
}

func TestUploadDocument_TextKind(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, resp, &project)

	docID := uploadTextDocument(t, env, project.ID, "revenue plan text")
	require.NotEmpty(t, docID)
}

func TestPhase1Scan_SynchronousNoJob(t *testing.T) {
	resp := `{"catalog":[{"sheet":"Revenue","cell":"B4","label":"MRR"}],"document_summary":"a plan"}`
	env := newTestEnv(t, resp)

	pResp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, pResp, &project)
	docID := uploadTextDocument(t, env, project.ID, "some document text")

	scanResp := env.post(t, "/v1/phase1/scan", map[string]any{
		"project_id":  project.ID,
		"document_id": docID,
	})
	require.Equal(t, http.StatusOK, scanResp.StatusCode)
	var body map[string]any
	decodeJSON(t, scanResp, &body)
	require.NotEmpty(t, body["catalog"])
}

func TestPhase1Scan_UnknownDocumentReturns404(t *testing.T) {
	env := newTestEnv(t, `{}`)
	pResp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, pResp, &project)

	scanResp := env.post(t, "/v1/phase1/scan", map[string]any{
		"project_id":  project.ID,
		"document_id": "nope",
	})
	require.Equal(t, http.StatusNotFound, scanResp.StatusCode)
}

func TestDispatchPhase2_ReturnsAcceptedWithPollURL(t *testing.T) {
	resp := `{"proposals":[{"industry":"SaaS","segments":[{"name":"SMB","source":"document"}]}]}`
	env := newTestEnv(t, resp)

	pResp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, pResp, &project)
	docID := uploadTextDocument(t, env, project.ID, "doc text")

	dispatchResp := env.post(t, "/v1/phase2/analyze", map[string]any{
		"project_id":  project.ID,
		"document_id": docID,
	})
	require.Equal(t, http.StatusAccepted, dispatchResp.StatusCode)

	var body map[string]any
	decodeJSON(t, dispatchResp, &body)
	require.Equal(t, "queued", body["status"])
	require.NotEmpty(t, body["poll_url"])
}

func TestDispatchPhase4_MissingPhase3ReturnsConflict(t *testing.T) {
	env := newTestEnv(t, `{}`)
	pResp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, pResp, &project)

	resp := env.post(t, "/v1/phase4/design", map[string]any{"project_id": project.ID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body struct {
		Detail struct {
			Code string `json:"code"`
		} `json:"detail"`
	}
	decodeJSON(t, resp, &body)
	require.Equal(t, "PHASE3_NOT_COMPLETED", body.Detail.Code)
}

func TestRecalc_SynchronousWithoutProject(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp := env.post(t, "/v1/recalc", map[string]any{
		"parameters": map[string]float64{
			"revenue_fy1": 100000,
			"growth_rate": 0.1,
			"cogs_rate":   0.4,
			"opex_base":   50000,
			"opex_growth": 0.05,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body["pl_summary"])
}

func TestExportDownload_UnknownJobReturnsNotFound(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp := env.post(t, "/v1/projects", map[string]string{"name": "P1"})
	var project store.Project
	decodeJSON(t, resp, &project)

	// DispatchExport fails because no exporter is wired — this just checks
	// the download endpoint's 404 JOB_NOT_FOUND path for a bogus id, since
	// a real in-flight job needs an emitter.Service the test env doesn't wire.
	dlResp, err := http.Get(env.server.URL + "/v1/export/download/not-a-real-job")
	require.NoError(t, err)
	defer dlResp.Body.Close()
	require.Equal(t, http.StatusNotFound, dlResp.StatusCode)
}

func TestAdminAuth_IssuesBearerTokenAndGatesPromptEndpoints(t *testing.T) {
	env := newTestEnv(t, `{}`)

	unauthed, err := http.Get(env.server.URL + "/v1/admin/prompts")
	require.NoError(t, err)
	defer unauthed.Body.Close()
	require.Equal(t, http.StatusUnauthorized, unauthed.StatusCode)

	authResp := env.post(t, "/v1/admin/auth", map[string]string{"id": "admin", "password": "x"})
	require.Equal(t, http.StatusOK, authResp.StatusCode)
	var tok map[string]string
	decodeJSON(t, authResp, &tok)
	require.NotEmpty(t, tok["access_token"])

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/admin/prompts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok["access_token"])
	authedResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authedResp.Body.Close()
	require.Equal(t, http.StatusOK, authedResp.StatusCode)
}
