package affinity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/crmupdater/internal/apperrors"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		requests = append(requests, rec)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient("key-123", WithBaseURL(srv.URL+"/v2/"), WithListID(42), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, &requests
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	c, err := NewClient("key")
	require.NoError(t, err)
	assert.Equal(t, DefaultListID, c.ListID())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestSearchCompany(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantFound bool
		wantID    int64
	}{
		{
			name:      "match",
			response:  `{"data":[{"id":7,"name":"Nova Credit","domain":"novacredit.com"}]}`,
			wantFound: true,
			wantID:    7,
		},
		{
			name:     "no match",
			response: `{"data":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, requests := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.response))
			})

			company, found, err := c.SearchCompany(context.Background(), "nova credit")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantID, company.ID)
			} else {
				assert.Nil(t, company)
			}

			require.Len(t, *requests, 1)
			req := (*requests)[0]
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "/v2/companies", req.Path)
			assert.Equal(t, "Bearer key-123", req.Auth)
			assert.Contains(t, req.Query, "limit=1")
			assert.Contains(t, req.Query, "filter=name%3D~%22nova+credit%22")
		})
	}
}

func TestCreateCompany(t *testing.T) {
	c, requests := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":99,"name":"acme"}`))
	})

	company, err := c.CreateCompany(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(99), company.ID)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "acme", req.Body["name"])
}

func TestListMembers_FollowsPagination(t *testing.T) {
	var base string
	c, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"company": map[string]any{"id": 1}},
					{"company": map[string]any{"id": 2}},
				},
				"pagination": map[string]any{"nextUrl": base + "/v2/lists/42/list-entries?cursor=abc"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":       []map[string]any{{"company": map[string]any{"id": 3}}, {"person": map[string]any{"id": 8}}},
			"pagination": map[string]any{"nextUrl": nil},
		})
	})
	base = c.baseURL[:len(c.baseURL)-len("/v2")]

	members, err := c.ListMembers(context.Background())
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.True(t, members.Has(1))
	assert.True(t, members.Has(3))
	assert.False(t, members.Has(8))

	require.Len(t, *requests, 2)
	assert.Equal(t, "/v2/lists/42/list-entries", (*requests)[0].Path)
	assert.Equal(t, "cursor=abc", (*requests)[1].Query)
}

func TestAddToListAndNote(t *testing.T) {
	c, requests := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.AddToList(context.Background(), 5))
	require.NoError(t, c.AddNote(context.Background(), 5, "Track closely."))

	require.Len(t, *requests, 2)
	assert.Equal(t, "/v2/lists/42/list-entries", (*requests)[0].Path)
	assert.Equal(t, float64(5), (*requests)[0].Body["companyId"])
	assert.Equal(t, "/v2/companies/5/notes", (*requests)[1].Path)
	assert.Equal(t, "Track closely.", (*requests)[1].Body["content"])
}

func TestAPIErrors(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"message":"name is taken"}]}`))
	})

	_, err := c.CreateCompany(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.CodeCrmOperation))
	assert.Contains(t, err.Error(), "create")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "name is taken")

	_, err = c.ListMembers(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.CodeCrmOperation))
}

func TestMemberSet(t *testing.T) {
	s := MemberSet{}
	assert.False(t, s.Has(1))
	s.Add(1)
	assert.True(t, s.Has(1))
}
