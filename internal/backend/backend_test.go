package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchProfileSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profile", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(domain.Profile{
			BaseProfile: domain.BaseProfile{Email: "operator@example.com", Role: domain.Role{Role: "ROLE_CONSULTANT"}},
			Settings:    domain.Settings{Init: domain.InitSettings{MaxParticipants: 2}},
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "secret").FetchProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "operator@example.com", p.Email)
	assert.Equal(t, "ROLE_CONSULTANT", p.Role.Role)
	assert.Equal(t, 2, p.Settings.Init.MaxParticipants)
}

func TestForbiddenWrapsStatusWithDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"quota exceeded"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "secret").FetchProfile(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.False(t, IsStatus(err, http.StatusBadRequest))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "quota exceeded", se.Detail)
	assert.Contains(t, se.Error(), "403")
	assert.Contains(t, se.Error(), "quota exceeded")
}

func TestIsStatusIgnoresForeignErrors(t *testing.T) {
	assert.False(t, IsStatus(errors.New("plain"), http.StatusForbidden))
}

func TestFetchUserInfoEncodesEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user-info", r.URL.Path)
		assert.Equal(t, "a+b@example.com", r.URL.Query().Get("email"))
		_ = json.NewEncoder(w).Encode(domain.UserInfo{
			BaseProfile: domain.BaseProfile{Email: "a+b@example.com"},
			Avatar:      "aGk=",
		})
	}))
	defer srv.Close()

	u, err := New(srv.URL, "secret").FetchUserInfo(context.Background(), "a+b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "aGk=", u.Avatar)
}

func TestParticipantRolesBatchQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/participant-roles", r.URL.Path)
		assert.Equal(t, []string{"c1", "c2"}, r.URL.Query()["id[]"])
		fmt.Fprint(w, `{"c1":"ROLE_CONSULTANT"}`)
	}))
	defer srv.Close()

	roles, err := New(srv.URL, "secret").ParticipantRoles(context.Background(),
		[]domain.ConnectionID{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, map[domain.ConnectionID]string{"c1": "ROLE_CONSULTANT"}, roles)
}

func TestLogMessagePostsRecord(t *testing.T) {
	var got domain.MessageRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := domain.MessageRecord{
		Type:       domain.MessageText,
		Text:       "hello",
		Time:       time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Connection: "c1",
	}
	require.NoError(t, New(srv.URL, "secret").LogMessage(context.Background(), rec))
	assert.Equal(t, rec, got)
}

func TestLogConnectionPostsSessionThenConnection(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/api/sessions":
			assert.Equal(t, "s1", body["id"])
		case "/api/connections":
			assert.Equal(t, "c1", body["id"])
			assert.Equal(t, "s1", body["session"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(srv.URL, "secret").LogConnection(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/sessions", "/api/connections"}, paths)
}

func TestLogConnectionStopsAfterSessionFailure(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL, "secret").LogConnection(context.Background(), "s1", "c1")
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, []string{"/api/sessions"}, paths)
}
