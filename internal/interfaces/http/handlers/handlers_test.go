package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appmolecule "github.com/turtacn/SMARTSexplore/internal/application/molecule"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

func newTestRouter() (http.Handler, *mockSMARTSService, *mockMoleculeService) {
	ss := new(mockSMARTSService)
	ms := new(mockMoleculeService)
	sh := NewSMARTSHandler(ss, nil)
	mh := NewMoleculeHandler(ms, 1<<20, nil)

	r := chi.NewRouter()
	r.Get("/smarts/data", sh.GetGraph)
	r.Post("/smarts/data", sh.QueryGraph)
	r.Get("/smarts/smartsview/{id}", sh.SMARTSImage)
	r.Get("/smarts/smartssubsets/{id}", sh.SubsetImage)
	r.Post("/molecules/upload", mh.Upload)
	r.Get("/molecules/matches/{id}", mh.Matches)
	r.Get("/molecules/images/{setid}/{molid}", mh.SetImage)
	r.Get("/molecules/images/{id}", mh.Image)
	return r, ss, ms
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) graph.ErrorResponse {
	t.Helper()
	var body graph.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func svg(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

func TestGetGraph_FullRange(t *testing.T) {
	h, ss, _ := newTestRouter()
	g := &graph.Graph{
		Nodes: []graph.Node{{ID: 1, Name: "amine", Library: "lib", Pattern: "[NX3]"}},
		Edges: []graph.Edge{},
	}
	ss.On("Graph", mock.Anything, 0.0, 1.0).Return(g, nil)

	w := do(h, httptest.NewRequest(http.MethodGet, "/smarts/data", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"nodes":[{"id":1,"name":"amine","library":"lib","pattern":"[NX3]"}],"edges":[]}`, w.Body.String())
}

func TestQueryGraph(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"spsim_min": 0.2, "spsim_max": 0.8}`, http.StatusOK},
		{"zero bounds", `{"spsim_min": 0, "spsim_max": 0}`, http.StatusOK},
		{"missing max", `{"spsim_min": 0.2}`, http.StatusBadRequest},
		{"string bound", `{"spsim_min": "low", "spsim_max": 1}`, http.StatusBadRequest},
		{"null bound", `{"spsim_min": null, "spsim_max": 1}`, http.StatusBadRequest},
		{"not json", `spsim_min=0`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ss, _ := newTestRouter()
			ss.On("Graph", mock.Anything, mock.Anything, mock.Anything).Return(&graph.Graph{}, nil)

			w := do(h, httptest.NewRequest(http.MethodPost, "/smarts/data", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusBadRequest {
				assert.Equal(t, "Invalid request.", decodeError(t, w).Error)
				ss.AssertNotCalled(t, "Graph", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestQueryGraph_PassesBounds(t *testing.T) {
	h, ss, _ := newTestRouter()
	ss.On("Graph", mock.Anything, 0.25, 0.75).Return(&graph.Graph{}, nil).Once()

	w := do(h, httptest.NewRequest(http.MethodPost, "/smarts/data", strings.NewReader(`{"spsim_min":0.25,"spsim_max":0.75}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	ss.AssertExpectations(t)
}

func TestGetGraph_StoreFailureIsMasked(t *testing.T) {
	h, ss, _ := newTestRouter()
	ss.On("Graph", mock.Anything, 0.0, 1.0).Return(nil, errors.New(errors.ErrCodeDatabaseError, "pq: connection refused"))

	w := do(h, httptest.NewRequest(http.MethodGet, "/smarts/data", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, string(errors.ErrCodeDatabaseError), body.Code)
}

func TestSMARTSImage(t *testing.T) {
	h, ss, _ := newTestRouter()
	ss.On("OpenSMARTSImage", mock.Anything, int64(12)).Return(svg("<svg>12</svg>"), nil)
	ss.On("OpenSMARTSImage", mock.Anything, int64(13)).Return(nil, errors.NotFound("image not found"))

	w := do(h, httptest.NewRequest(http.MethodGet, "/smarts/smartsview/12", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Equal(t, "<svg>12</svg>", w.Body.String())

	w = do(h, httptest.NewRequest(http.MethodGet, "/smarts/smartsview/13", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, httptest.NewRequest(http.MethodGet, "/smarts/smartsview/abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	ss.AssertNumberOfCalls(t, "OpenSMARTSImage", 2)
}

func TestSubsetImage_StorageError(t *testing.T) {
	h, ss, _ := newTestRouter()
	ss.On("OpenSubsetImage", mock.Anything, int64(4)).Return(nil, errors.New(errors.ErrCodeStorageError, "disk gone"))

	w := do(h, httptest.NewRequest(http.MethodGet, "/smarts/smartssubsets/4", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/molecules/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_Success(t *testing.T) {
	h, _, ms := newTestRouter()
	list := &graph.MatchList{
		MoleculeSetID: 3,
		Matches:       []graph.Match{{MoleculeID: 10, MoleculeName: "ethanol", SMARTSID: 2}},
	}
	ms.On("Upload", mock.Anything, mock.MatchedBy(func(in *appmolecule.UploadInput) bool {
		return in.Filename == "set.smi" && string(in.Data) == "CCO ethanol\n"
	})).Return(list, nil)

	w := do(h, uploadRequest(t, "file", "set.smi", "CCO ethanol\n"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"molecule_set_id":3,"matches":[{"molecule_id":10,"molecule_name":"ethanol","smarts_id":2}]}`, w.Body.String())
}

func TestUpload_MissingFile(t *testing.T) {
	h, _, ms := newTestRouter()

	w := do(h, uploadRequest(t, "other", "set.smi", "CCO\n"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request seems to be missing a molecule file.", decodeError(t, w).Error)
	ms.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestUpload_ValidationError(t *testing.T) {
	h, _, ms := newTestRouter()
	ms.On("Upload", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeUploadValidation, "Please upload a .smi or .smiles file!"))

	w := do(h, uploadRequest(t, "file", "set.txt", "CCO\n"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Please upload a .smi or .smiles file!", body.Error)
	assert.Equal(t, string(errors.ErrCodeUploadValidation), body.Code)
}

func TestUpload_ToolFailureIsBadGateway(t *testing.T) {
	h, _, ms := newTestRouter()
	toolErr := errors.New(errors.ErrCodeExternalTool, "matchtool exited with status 1")
	ms.On("Upload", mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(toolErr, errors.ErrCodePipelineFailure, "molecule matching failed"))

	w := do(h, uploadRequest(t, "file", "set.smi", "CCO\n"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "molecule matching failed", decodeError(t, w).Error)
}

func TestUpload_BodyTooLarge(t *testing.T) {
	h, _, ms := newTestRouter()

	w := do(h, uploadRequest(t, "file", "big.smi", strings.Repeat("C", 2<<20)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ms.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestMatches(t *testing.T) {
	h, _, ms := newTestRouter()
	ms.On("Matches", mock.Anything, int64(5)).Return(&graph.MatchList{MoleculeSetID: 5, Matches: []graph.Match{}}, nil)
	ms.On("Matches", mock.Anything, int64(6)).Return(nil, errors.New(errors.ErrCodeMoleculeSetNotFound, "molecule set 6 not found"))

	w := do(h, httptest.NewRequest(http.MethodGet, "/molecules/matches/5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"molecule_set_id":5,"matches":[]}`, w.Body.String())

	w = do(h, httptest.NewRequest(http.MethodGet, "/molecules/matches/6", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Unknown molecule set.", decodeError(t, w).Error)
}

func TestMoleculeImages(t *testing.T) {
	h, _, ms := newTestRouter()
	ms.On("OpenMoleculeImage", mock.Anything, int64(2), int64(9)).Return(svg("<svg/>"), nil)
	ms.On("OpenMoleculeImageByID", mock.Anything, int64(9)).Return(svg("<svg/>"), nil)
	ms.On("OpenMoleculeImageByID", mock.Anything, int64(99)).Return(nil, errors.New(errors.ErrCodeMoleculeNotFound, "molecule 99 not found"))

	w := do(h, httptest.NewRequest(http.MethodGet, "/molecules/images/2/9", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))

	w = do(h, httptest.NewRequest(http.MethodGet, "/molecules/images/9", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, httptest.NewRequest(http.MethodGet, "/molecules/images/99", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeUploadValidation, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeValidation, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeSMARTSNotFound, "x"), http.StatusNotFound},
		{errors.New(errors.ErrCodeConflict, "x"), http.StatusConflict},
		{errors.New(errors.ErrCodeExternalToolTimeout, "x"), http.StatusBadGateway},
		{errors.Wrap(errors.New(errors.ErrCodeMoleculeSetNotFound, "x"), errors.ErrCodeInternal, "y"), http.StatusNotFound},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	ok := CheckFunc{Component: "store", Fn: func(context.Context) error { return nil }}
	bad := CheckFunc{Component: "redis", Fn: func(context.Context) error { return fmt.Errorf("refused") }}

	w := httptest.NewRecorder()
	NewHealthHandler("test", ok).Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewHealthHandler("test", ok, bad).Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body graph.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "healthy", body.Components["store"])
	assert.Equal(t, "unhealthy: refused", body.Components["redis"])

	w = httptest.NewRecorder()
	NewHealthHandler("1.2.3", bad).Liveness(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
}
