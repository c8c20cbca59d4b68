package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Standard identifiers returned by MockGraphAPI
const (
	GraphUserID         = "fb-user-1"
	GraphUserName       = "Test User"
	GraphPageID         = "page-1"
	GraphPageToken      = "page-token-1"
	GraphInstagramID    = "17841400000000001"
	GraphShortToken     = "short-token"
	GraphLongToken      = "long-token"
	GraphLongTokenTTL   = 5184000
	GraphStatusFinished = "FINISHED"
	GraphStatusProgress = "IN_PROGRESS"
	GraphStatusError    = "ERROR"
)

// MockGraphAPI is an in-process Facebook Graph API covering the publish
// endpoints and the account discovery used by the OAuth callback
type MockGraphAPI struct {
	Server *httptest.Server

	// StatusSequence is served to container status reads in order; the last
	// entry repeats. Empty means FINISHED.
	StatusSequence []string
	// Function mocks override a route when set
	CreateContainerFunc func(accountID string, form map[string]string) (int, string)
	PublishFunc         func(accountID, creationID string) (int, string)

	mutex       sync.Mutex
	nextID      int
	statusReads int
	creates     int
	publishes   int
	lastForm    map[string]string
}

// NewMockGraphAPI starts the mock server. Close it with Close.
func NewMockGraphAPI() *MockGraphAPI {
	m := &MockGraphAPI{}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the base URL of the mock
func (m *MockGraphAPI) URL() string {
	return m.Server.URL
}

// Close stops the server
func (m *MockGraphAPI) Close() {
	m.Server.Close()
}

// Counts returns how often containers were created, statuses read and media published
func (m *MockGraphAPI) Counts() (creates, statusReads, publishes int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.creates, m.statusReads, m.publishes
}

// LastForm returns the form of the last container create
func (m *MockGraphAPI) LastForm() map[string]string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lastForm
}

func (m *MockGraphAPI) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *MockGraphAPI) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeGraphError(w, http.StatusBadRequest, err.Error())
		return
	}
	form := make(map[string]string, len(r.Form))
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	switch {
	case r.URL.Path == "/oauth/access_token" && r.Method == http.MethodPost:
		writeGraphJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": GraphShortToken, "token_type": "bearer", "expires_in": 3600,
		})
	case r.URL.Path == "/oauth/access_token":
		writeGraphJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": GraphLongToken, "token_type": "bearer", "expires_in": GraphLongTokenTTL,
		})
	case r.URL.Path == "/me/accounts":
		writeGraphJSON(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{{
				"id":           GraphPageID,
				"name":         "Test Page",
				"access_token": GraphPageToken,
				"picture":      map[string]interface{}{"data": map[string]string{"url": "https://cdn.example.com/page.png"}},
			}},
		})
	case r.URL.Path == "/me":
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": GraphUserID, "name": GraphUserName})
	case len(parts) == 2 && parts[1] == "media" && r.Method == http.MethodPost:
		m.creates++
		m.lastForm = form
		if m.CreateContainerFunc != nil {
			status, body := m.CreateContainerFunc(parts[0], form)
			writeGraphRaw(w, status, body)
			return
		}
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": m.id("container")})
	case len(parts) == 2 && parts[1] == "media_publish" && r.Method == http.MethodPost:
		m.publishes++
		if m.PublishFunc != nil {
			status, body := m.PublishFunc(parts[0], form["creation_id"])
			writeGraphRaw(w, status, body)
			return
		}
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": m.id("media")})
	case len(parts) == 2 && parts[1] == "photos" && r.Method == http.MethodPost:
		m.creates++
		m.lastForm = form
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": m.id("photo")})
	case len(parts) == 2 && parts[1] == "feed" && r.Method == http.MethodPost:
		m.publishes++
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": parts[0] + "_" + m.id("post")})
	case len(parts) == 1 && parts[0] == GraphPageID && r.Method == http.MethodGet:
		writeGraphJSON(w, http.StatusOK, map[string]interface{}{
			"id": GraphPageID,
			"instagram_business_account": map[string]string{
				"id": GraphInstagramID, "username": "test.insta", "profile_picture_url": "https://cdn.example.com/ig.png",
			},
		})
	case len(parts) == 1 && r.Method == http.MethodGet && strings.Contains(form["fields"], "status_code"):
		status := GraphStatusFinished
		if n := len(m.StatusSequence); n > 0 {
			i := m.statusReads
			if i >= n {
				i = n - 1
			}
			status = m.StatusSequence[i]
		}
		m.statusReads++
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": parts[0], "status_code": status})
	case len(parts) == 1 && r.Method == http.MethodGet:
		m.statusReads++
		writeGraphJSON(w, http.StatusOK, map[string]string{"id": parts[0]})
	default:
		writeGraphError(w, http.StatusNotFound, "unknown path "+r.URL.Path)
	}
}

// GraphError builds a Graph error body
func GraphError(message string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "type": "OAuthException", "code": 100},
	})
	return string(b)
}

func writeGraphError(w http.ResponseWriter, status int, message string) {
	writeGraphRaw(w, status, GraphError(message))
}

func writeGraphJSON(w http.ResponseWriter, status int, v interface{}) {
	b, _ := json.Marshal(v)
	writeGraphRaw(w, status, string(b))
}

func writeGraphRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
