package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/database/dbtest"
	"jobportal/internal/events"
	"jobportal/internal/jobs"
	"jobportal/internal/storage"
	"jobportal/internal/uploads"
	"jobportal/internal/users"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

type harness struct {
	router *gin.Engine
	tokens *auth.TokenService
	images afero.Fs
	feed   *events.Feed
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Auth.TokenTTL = time.Hour
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db := dbtest.New(t)
	userStore := users.NewStore(db)

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := events.NewFeed(nil, logger)
	jobStore := jobs.NewStore(db,
		jobs.WithPublisher(feed),
		jobs.WithLogger(logger),
		jobs.WithClock(func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		}),
	)

	imagesFs := afero.NewMemMapFs()
	disk, err := storage.NewDisk(imagesFs, "/images")
	require.NoError(t, err)
	manager, err := uploads.New(disk, userStore, uploads.Options{Logger: logger})
	require.NoError(t, err)

	tokens, err := auth.NewHMACTokenService([]byte("test-secret"), cfg.Auth.TokenTTL)
	require.NoError(t, err)

	router := NewRouter(cfg, logger)
	RegisterRoutes(router, Deps{
		Users:   userStore,
		Jobs:    jobStore,
		Uploads: manager,
		Images:  disk,
		Tokens:  tokens,
		Hasher:  auth.NewHasher(bcrypt.MinCost),
		Feed:    feed,
		Logger:  logger,
		API:     cfg.API,
		Auth:    cfg.Auth,
	})

	return &harness{router: router, tokens: tokens, images: imagesFs, feed: feed}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) register(t *testing.T, name, email, role string) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/user/create", gin.H{
		"fullName": name, "email": email, "password": "Passw0rd!", "type": role,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (h *harness) login(t *testing.T, email string) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/user/login", gin.H{"email": email, "password": "Passw0rd!"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func TestUserLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	h.register(t, "Ada Lovelace", "a@x.edu", "employee")

	w := h.do(t, http.MethodPost, "/user/create", gin.H{
		"fullName": "Ada Again", "email": "A@X.edu", "password": "Passw0rd!", "type": "employee",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed due to existing user.", errorOf(t, w))

	w = h.do(t, http.MethodPost, "/user/login", gin.H{"email": "a@x.edu", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password.", errorOf(t, w))

	w = h.do(t, http.MethodPost, "/user/login", gin.H{"email": "ghost@x.edu", "password": "Passw0rd!"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/user/login", gin.H{"email": "a@x.edu", "password": "Passw0rd!"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "assword")
	var login struct {
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
		ExpiresIn int64  `json:"expiresIn"`
		User      struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, int64(3600), login.ExpiresIn)
	assert.Equal(t, "a@x.edu", login.User.Email)
	assert.Equal(t, "employee", login.User.Role)

	claims, err := h.tokens.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleEmployee, claims.Role)

	w = h.do(t, http.MethodGet, "/user/getAll", nil, login.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h.register(t, "Grace Hopper", "g@x.edu", "admin")
	adminToken := h.login(t, "g@x.edu")

	for _, path := range []string{"/user/getAll", "/user"} {
		w = h.do(t, http.MethodGet, path, nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.NotContains(t, w.Body.String(), "assword", path)
		var list struct {
			Users []userView `json:"users"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list.Users, 2)
		assert.Equal(t, "a@x.edu", list.Users[0].Email)
		assert.Equal(t, "admin", list.Users[1].Type)
	}
}

func TestCreateUserValidation(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Auth.AllowedEmailDomain = "northeastern.edu" })

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing fields", gin.H{"email": "a@northeastern.edu"}},
		{"bad role", gin.H{"fullName": "Ada", "email": "a@northeastern.edu", "password": "Passw0rd!", "type": "boss"}},
		{"wrong domain", gin.H{"fullName": "Ada", "email": "a@gmail.com", "password": "Passw0rd!", "role": "employee"}},
		{"weak password", gin.H{"fullName": "Ada", "email": "a@northeastern.edu", "password": "password", "role": "employee"}},
	}
	for _, tc := range cases {
		w := h.do(t, http.MethodPost, "/user/create", tc.body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.name)
		assert.True(t, strings.HasPrefix(errorOf(t, w), "Validation failed"), tc.name)
	}
}

func TestAuthMiddlewareErrors(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodGet, "/user/getAll", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access denied. No token provided.", errorOf(t, w))

	w = h.do(t, http.MethodGet, "/user/getAll", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token.", errorOf(t, w))

	expired, err := h.tokens.Issue(auth.Identity{UserID: 1, Email: "g@x.edu", Role: auth.RoleAdmin}, 0)
	require.NoError(t, err)
	w = h.do(t, http.MethodGet, "/user/getAll", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token expired. Please login again.", errorOf(t, w))
}

func TestEditOwnership(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "Ada Lovelace", "a@x.edu", "employee")
	h.register(t, "Bob Builder", "b@x.edu", "employee")
	bob := h.login(t, "b@x.edu")
	ada := h.login(t, "a@x.edu")

	w := h.do(t, http.MethodPut, "/user/edit", gin.H{"email": "a@x.edu", "fullName": "Mallory"}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPut, "/user/edit", gin.H{"email": "a@x.edu", "fullName": "Ada 2"}, ada)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/user/edit", gin.H{"email": "a@x.edu", "fullName": "Ada Byron", "password": "N3wPass!word"}, ada)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/user/login", gin.H{"email": "a@x.edu", "password": "N3wPass!word"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJobsEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	stream := h.feed.Subscribe(ctx)

	for _, title := range []string{"J1", "J2"} {
		w := h.do(t, http.MethodPost, "/job/create", gin.H{
			"companyName": "Acme", "jobTitle": title, "description": "Build", "salary": 100, "createdBy": "g@x.edu",
		}, "")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	select {
	case raw := <-stream:
		var ev events.JobEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "J1", ev.Job.JobTitle)
	case <-time.After(time.Second):
		t.Fatal("no job event published")
	}

	w := h.do(t, http.MethodGet, "/job", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs []events.JobView `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 2)
	assert.Equal(t, "J2", list.Jobs[0].JobTitle)
	assert.Equal(t, "J1", list.Jobs[1].JobTitle)

	w = h.do(t, http.MethodGet, "/job/"+strconv.FormatUint(uint64(list.Jobs[1].ID), 10), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jobTitle":"J1"`)

	w = h.do(t, http.MethodGet, "/job/abc", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodGet, "/job/9999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found.", errorOf(t, w))

	w = h.do(t, http.MethodPost, "/job/create", gin.H{
		"companyName": "Acme", "jobTitle": "X", "description": "Y", "salary": "lots", "createdBy": "g@x.edu",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Salary must be a positive number.", errorOf(t, w))

	w = h.do(t, http.MethodPost, "/job/create", gin.H{"companyName": "Acme"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorOf(t, w), "All fields")
}

func TestJobCreateCanRequireAdmin(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.API.JobCreateRequiresAdmin = true })
	body := gin.H{"companyName": "Acme", "jobTitle": "X", "description": "Y", "salary": 1, "createdBy": "e@x.edu"}

	w := h.do(t, http.MethodPost, "/job/create", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	h.register(t, "Eve Employee", "e@x.edu", "employee")
	w = h.do(t, http.MethodPost, "/job/create", body, h.login(t, "e@x.edu"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func multipartUpload(t *testing.T, email, imageName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("email", email))
	require.NoError(t, writer.WriteField("imageName", imageName))

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (h *harness) upload(t *testing.T, token, email, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, email, "Office", contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/user/uploadImage", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestImageLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "Ada Lovelace", "a@x.edu", "employee")
	h.register(t, "Bob Builder", "b@x.edu", "employee")
	h.register(t, "Grace Hopper", "g@x.edu", "admin")
	ada := h.login(t, "a@x.edu")
	bob := h.login(t, "b@x.edu")
	admin := h.login(t, "g@x.edu")

	w := h.upload(t, bob, "a@x.edu", "image/png", pngBytes)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.upload(t, ada, "a@x.edu", "application/pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file format. Only JPEG, PNG, and GIF are allowed.", errorOf(t, w))

	w = h.upload(t, ada, "a@x.edu", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var uploaded struct {
		FilePath    string `json:"filePath"`
		ImageName   string `json:"imageName"`
		TotalImages int    `json:"totalImages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	assert.Equal(t, "Office", uploaded.ImageName)
	assert.Equal(t, 1, uploaded.TotalImages)
	assert.True(t, strings.HasSuffix(uploaded.FilePath, ".png"))

	w = h.do(t, http.MethodGet, "/images/"+uploaded.FilePath, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngBytes, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = h.do(t, http.MethodGet, "/user/images/a@x.edu", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalImages":1`)

	w = h.do(t, http.MethodGet, "/user/showcase", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@x.edu")
	assert.NotContains(t, w.Body.String(), "b@x.edu")

	// a second image, removed through the API
	w = h.upload(t, ada, "a@x.edu", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code)
	var second struct {
		FilePath string `json:"filePath"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	w = h.do(t, http.MethodDelete, "/user/deleteImage", gin.H{"email": "a@x.edu", "imagePath": second.FilePath}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(t, http.MethodDelete, "/user/deleteImage", gin.H{"email": "a@x.edu", "imagePath": "missing.png"}, ada)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodDelete, "/user/deleteImage", gin.H{"email": "a@x.edu", "imagePath": second.FilePath}, ada)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remainingImages":1`)

	w = h.do(t, http.MethodDelete, "/user/delete", gin.H{"email": "a@x.edu"}, ada)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(t, http.MethodDelete, "/user/delete", gin.H{"email": "a@x.edu"}, admin)
	require.Equal(t, http.StatusOK, w.Code)

	exists, err := afero.Exists(h.images, "/images/"+uploaded.FilePath)
	require.NoError(t, err)
	assert.False(t, exists, "image file should be purged with the account")

	w = h.do(t, http.MethodGet, "/user/images/a@x.edu", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodGet, "/images/"+uploaded.FilePath, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommonHeaders(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	req := httptest.NewRequest(http.MethodGet, "/job", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestMetricsSecret(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Metrics.Secret = "s3cret" })

	w := h.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPanicAnswersJSON(t *testing.T) {
	h := newHarness(t, nil)
	h.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := h.do(t, http.MethodGet, "/boom", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error.", errorOf(t, w))
}

func TestServeImageIgnoresDirectories(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.images.MkdirAll("/images/.staging", 0o755))

	w := h.do(t, http.MethodGet, "/images/.staging", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Image not found.", errorOf(t, w))
}
