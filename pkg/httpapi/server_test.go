package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmos/pkg/config"
	"llmos/pkg/functions"
	"llmos/pkg/llmhost"
	"llmos/pkg/personas"
	"llmos/pkg/runtime"
	"llmos/pkg/tokenregistry"
)

type scriptedHost struct{ replies []string; calls int }

func (h *scriptedHost) Chat(_ context.Context, _ llmhost.Request) (llmhost.Response, error) {
	reply := h.replies[h.calls]
	if h.calls < len(h.replies)-1 {
		h.calls++
	}
	return llmhost.Response{Content: reply}, nil
}

func sendMessageReply(msg string) string {
	return `{"emotions":[["curious",5]],"thoughts":["replying"],` +
		`"function_call":{"name":"send_message","arguments":{"message":"` + msg + `"}}}`
}

func newTestServer(t *testing.T, host llmhost.Host) (*Server, string) {
	t.Helper()
	functions.Reset()
	functions.RegisterBase()

	root := t.TempDir()
	personaDir := filepath.Join(root, "personas")
	require.NoError(t, os.MkdirAll(filepath.Join(personaDir, "agents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(personaDir, "humans"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(personaDir, "agents", "sam.txt"), []byte("I am Sam."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(personaDir, "humans", "alex.txt"), []byte("Alex likes hiking."), 0o644))

	dataDir := filepath.Join(root, "persistent_storage")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	store := personas.New(personaDir)
	rt := runtime.New(runtime.Config{
		DataDir: dataDir, Personas: store, Instructions: "you are an assistant",
		Tokens: tokenregistry.New(),
		Budget: config.Budget{
			PersonaMaxTokens: 750, HumanMaxTokens: 500,
			WarnFrac: 0.95, FlushFrac: 0.98, TruncationFrac: 0.5,
			LastNMessages: 3, ForceWriteEvery: 7, RetrievalPageSize: 5,
		},
		Model: config.Model{Name: "gpt-4", ContextWindow: 8192}, Host: host, SkipArchival: true,
	})
	return New(rt, store, nil), dataDir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlePersonaAgentsAndHumans(t *testing.T) {
	s, _ := newTestServer(t, &scriptedHost{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/personas/agents", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sam.txt")

	w = doJSON(t, h, http.MethodGet, "/personas/humans", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alex.txt")
}

func TestHandleAgentCreateListDelete(t *testing.T) {
	s, _ := newTestServer(t, &scriptedHost{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/agent", createAgentRequest{AgentPersonaName: "sam.txt", HumanPersonaName: "alex.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	convName := created["conv_name"]
	require.NotEmpty(t, convName)

	w = doJSON(t, h, http.MethodGet, "/conversation-ids", nil)
	assert.Contains(t, w.Body.String(), convName)

	w = doJSON(t, h, http.MethodDelete, "/agent", deleteAgentRequest{ConvName: convName})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = doJSON(t, h, http.MethodGet, "/conversation-ids", nil)
	assert.NotContains(t, w.Body.String(), convName)
}

func TestHandleAgentHumans(t *testing.T) {
	s, _ := newTestServer(t, &scriptedHost{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/agent", createAgentRequest{AgentPersonaName: "sam.txt", HumanPersonaName: "alex.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	convName := created["conv_name"]

	w = doJSON(t, h, http.MethodGet, "/agent/humans", humanIDsRequest{ConvName: convName})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"human_ids":[1]`)
}

func TestHandleSendStreamsAssistantMessage(t *testing.T) {
	host := &scriptedHost{replies: []string{sendMessageReply("hi there")}}
	s, _ := newTestServer(t, host)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/agent", createAgentRequest{AgentPersonaName: "sam.txt", HumanPersonaName: "alex.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	convName := created["conv_name"]

	w = doJSON(t, h, http.MethodPost, "/messages/send/first-message", sendMessageRequest{ConvName: convName, UserID: 1, Message: "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "assistant_message")
	assert.Contains(t, w.Body.String(), "hi there")
	assert.Contains(t, w.Body.String(), "total_duration")
	assert.Contains(t, w.Body.String(), `"ctx_window":8192`)
}
