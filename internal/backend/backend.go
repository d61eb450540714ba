// Package backend is the HTTP client for the consult backend: profile and
// tenant lookup, participant role resolution, message/connection logging.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/consult/internal/domain"
)

// StatusError carries the HTTP status of a failed backend call so
// callers can branch on capacity (403) and bad-request (400) classes.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: status %d", e.Code)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Detail)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Client struct {
	base  string
	token string
	http  *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) FetchProfile(ctx context.Context) (domain.Profile, error) {
	var p domain.Profile
	err := c.get(ctx, "/api/profile", nil, &p)
	return p, err
}

func (c *Client) FetchTenant(ctx context.Context) (domain.Tenant, error) {
	var t domain.Tenant
	err := c.get(ctx, "/api/tenant", nil, &t)
	return t, err
}

func (c *Client) FetchUserInfo(ctx context.Context, email string) (domain.UserInfo, error) {
	var u domain.UserInfo
	q := url.Values{"email": {email}}
	err := c.get(ctx, "/api/user-info", q, &u)
	return u, err
}

// ParticipantRoles resolves connection ids to backend role strings in one
// batch query. Connections unknown to the backend are absent from the
// result.
func (c *Client) ParticipantRoles(ctx context.Context, ids []domain.ConnectionID) (map[domain.ConnectionID]string, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id[]", string(id))
	}
	roles := make(map[domain.ConnectionID]string)
	if err := c.get(ctx, "/api/participant-roles", q, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *Client) LogMessage(ctx context.Context, rec domain.MessageRecord) error {
	return c.post(ctx, "/api/messages", rec, nil)
}

// LogConnection records a session and the local connection joined to it,
// for backend call-detail reporting.
func (c *Client) LogConnection(ctx context.Context, sessionID domain.SessionID, connectionID domain.ConnectionID) error {
	if err := c.post(ctx, "/api/sessions", map[string]any{"id": sessionID}, nil); err != nil {
		return err
	}
	return c.post(ctx, "/api/connections", map[string]any{"id": connectionID, "session": sessionID}, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&detail)
		return &StatusError{Code: resp.StatusCode, Detail: detail.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
