package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmark-score/internal/leaderboard"
	"mmark-score/internal/scores"
	"mmark-score/internal/storage"
	"mmark-score/internal/submission"
)

type MockScores struct {
	submitErr error
	gotBody   []byte
	gotIP     string

	detail     scores.Detail
	detailErr  error
	gotNonce   *string
	claimErr   error
	claimed    [3]string
	country    string
	page       leaderboard.Page
	boardLines []leaderboard.Line
}

func (m *MockScores) Submit(_ context.Context, body []byte, ip string) (scores.Receipt, error) {
	m.gotBody, m.gotIP = body, ip
	if m.submitErr != nil {
		return scores.Receipt{}, m.submitErr
	}
	return scores.Receipt{ScoreUUID: "u-1", Nonce: "n-1"}, nil
}

func (m *MockScores) Scoreboard(context.Context) (leaderboard.Page, error) { return m.page, nil }

func (m *MockScores) CountryBoard(_ context.Context, code string) ([]leaderboard.Line, error) {
	m.country = code
	return m.boardLines, nil
}

func (m *MockScores) ScoreDetail(_ context.Context, _ string, nonce *string) (scores.Detail, error) {
	m.gotNonce = nonce
	return m.detail, m.detailErr
}

func (m *MockScores) ClaimScore(_ context.Context, id, nonce, name string) error {
	m.claimed = [3]string{id, nonce, name}
	return m.claimErr
}

func (m *MockScores) News(context.Context) ([]storage.NewsItem, error) {
	return []storage.NewsItem{{ID: 1, Text: "hello"}}, nil
}

var testCreds = Credentials{Username: "client", Password: "secret", Realm: "MMark", JSONSalt: "salt"}

func newTestRouter(m *MockScores) http.Handler {
	return Router(NewScoreHandler(m), testCreds)
}

func uploadRequest(body, sig string, auth bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	if auth {
		req.SetBasicAuth(testCreds.Username, testCreds.Password)
	}
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	req.RemoteAddr = "198.51.100.7:5123"
	return req
}

func TestUpload_Scenarios(t *testing.T) {
	body := `{"submit_id":"n-1"}`
	good := Sign([]byte(body), testCreds.JSONSalt)

	tests := []struct {
		name       string
		req        *http.Request
		submitErr  error
		wantStatus int
		wantBody   string
	}{
		{"no auth", uploadRequest(body, good, false), nil, http.StatusUnauthorized, ""},
		{"missing signature", uploadRequest(body, "", true), nil, http.StatusBadRequest, ""},
		{"bad signature", uploadRequest(body, strings.Repeat("0", 32), true), nil, http.StatusBadRequest, ""},
		{"uppercase signature", uploadRequest(body, strings.ToUpper(good), true), nil, http.StatusOK, `"score_uuid":"u-1"`},
		{"ok", uploadRequest(body, good, true), nil, http.StatusOK, `"nonce":"n-1"`},
		{"missing item", uploadRequest(body, good, true), &submission.MissingItemError{Item: "score"}, http.StatusBadRequest, "Missing item: score"},
		{"invalid value", uploadRequest(body, good, true), fmt.Errorf("%w: total_ram", submission.ErrInvalidValue), http.StatusBadRequest, "total_ram"},
		{"resubmission", uploadRequest(body, good, true), fmt.Errorf("%w: key", storage.ErrAlreadySubmitted), http.StatusConflict, "client_submit_id resubmission"},
		{"internal", uploadRequest(body, good, true), fmt.Errorf("db down"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockScores{submitErr: tt.submitErr}
			w := httptest.NewRecorder()
			newTestRouter(m).ServeHTTP(w, tt.req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="MMark"`, w.Header().Get("WWW-Authenticate"))
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, body, string(m.gotBody))
				assert.Equal(t, "198.51.100.7", m.gotIP)
			}
		})
	}
}

func TestUpload_ForwardedFor(t *testing.T) {
	body := `{}`
	req := uploadRequest(body, Sign([]byte(body), testCreds.JSONSalt), true)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	m := &MockScores{}
	w := httptest.NewRecorder()
	newTestRouter(m).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "203.0.113.9", m.gotIP)
}

func TestScoreDetail(t *testing.T) {
	nonce := "n-1"
	m := &MockScores{detail: scores.Detail{Nonce: &nonce, GLFinishErr: true}}
	req := httptest.NewRequest(http.MethodGet, "/v1/scores/u-1?nonce=n-1", nil)
	req.AddCookie(&http.Cookie{Name: "user_name", Value: base64.StdEncoding.EncodeToString([]byte("Väinö"))})
	w := httptest.NewRecorder()
	newTestRouter(m).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, m.gotNonce)
	assert.Equal(t, "n-1", *m.gotNonce)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Väinö", got["name"])
	assert.Equal(t, "n-1", got["nonce"])
	assert.Equal(t, true, got["gl_finish_err"])
}

func TestScoreDetail_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", storage.ErrNotFound, http.StatusNotFound},
		{"bad nonce", scores.ErrInvalidNonce, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockScores{detailErr: tt.err}
			w := httptest.NewRecorder()
			newTestRouter(m).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scores/u-1", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Nil(t, m.gotNonce)
		})
	}
}

func TestClaimScore(t *testing.T) {
	t.Run("form", func(t *testing.T) {
		m := &MockScores{}
		form := url.Values{"name": {"ville"}, "nonce": {"n-1"}}
		req := httptest.NewRequest(http.MethodPost, "/v1/scores/u-1/name", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		newTestRouter(m).ServeHTTP(w, req)

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, [3]string{"u-1", "n-1", "ville"}, m.claimed)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ville")), cookies[0].Value)
	})

	t.Run("json", func(t *testing.T) {
		m := &MockScores{}
		req := httptest.NewRequest(http.MethodPost, "/v1/scores/u-1/name", strings.NewReader(`{"name":"anna","nonce":"n-2"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newTestRouter(m).ServeHTTP(w, req)

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, [3]string{"u-1", "n-2", "anna"}, m.claimed)
	})

	t.Run("missing name", func(t *testing.T) {
		m := &MockScores{}
		req := httptest.NewRequest(http.MethodPost, "/v1/scores/u-1/name", strings.NewReader(`{"nonce":"n-2"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newTestRouter(m).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("taken", func(t *testing.T) {
		m := &MockScores{claimErr: scores.ErrNameTaken}
		req := httptest.NewRequest(http.MethodPost, "/v1/scores/u-1/name", strings.NewReader(`{"name":"a","nonce":"n"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newTestRouter(m).ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestBoards(t *testing.T) {
	m := &MockScores{
		page:       leaderboard.Page{Platforms: leaderboard.PlatformCounts{Android: 2}},
		boardLines: []leaderboard.Line{{UUID: "x", Device: "Jolla Jolla", Score: 10, BarLength: 400}},
	}
	ts := httptest.NewServer(newTestRouter(m))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/scores")
	require.NoError(t, err)
	var page leaderboard.Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	resp.Body.Close()
	assert.Equal(t, 2, page.Platforms.Android)

	resp, err = http.Get(ts.URL + "/v1/countries/fi/scores")
	require.NoError(t, err)
	var lines []leaderboard.Line
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lines))
	resp.Body.Close()
	assert.Equal(t, "fi", m.country)
	require.Len(t, lines, 1)

	resp, err = http.Get(ts.URL + "/v1/countries/finland/scores")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for path, want := range map[string]int{"/v1/news": 200, "/healthz": 200, "/metrics": 200} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestSign(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Sign(nil, ""))
	assert.Equal(t, Sign([]byte("{}salt"), ""), Sign([]byte("{}"), "salt"))
	assert.NotEqual(t, Sign([]byte("{}"), "salt"), Sign([]byte("{}"), "pepper"))
}
