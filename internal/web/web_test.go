package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"artemis/auth"
	"artemis/internal/conversation"
	"artemis/internal/engine"
	"artemis/internal/interaction"
	"artemis/internal/web/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, authModule *auth.AuthModule) (*WebServer, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := engine.NewEngine(engine.Options{Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		cancel()
		eng.Stop()
	})
	if authModule == nil {
		authModule = auth.NewAuthModule("", "", 0, "")
	}
	ws, err := NewWebServer(eng, authModule, 5*time.Millisecond, testLogger())
	require.NoError(t, err)
	return ws, eng
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	rec := do(t, ws.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","state":"IDLE"}`, rec.Body.String())
}

func TestPairingAndProtectedRoutes(t *testing.T) {
	hash, err := auth.HashPassphrase("open sesame")
	require.NoError(t, err)
	ws, _ := newTestServer(t, auth.NewAuthModule(hash, "secret", time.Hour, "artemis"))
	h := ws.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/assistant/state", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/auth/token", `{"passphrase":"wrong"}`).Code)

	rec := do(t, h, http.MethodPost, "/auth/token", `{"passphrase":"open sesame"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok models.TokenResponse
	decode(t, rec, &tok)
	require.NotEmpty(t, tok.Token)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/assistant/state", "", "Authorization", "Bearer "+tok.Token).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/assistant/state?token="+tok.Token, "").Code)
}

func TestPairingDisabled(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	rec := do(t, ws.Handler(), http.MethodPost, "/auth/token", `{"passphrase":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssistantTransitions(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/assistant/listen/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap interaction.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, interaction.Listening, snap.State)

	rec = do(t, h, http.MethodPost, "/assistant/listen/stop", `{"text":"turn on the lights"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &snap)
	assert.Equal(t, interaction.Processing, snap.State)
	require.NotEmpty(t, snap.Messages)
	assert.Equal(t, "turn on the lights", snap.Messages[len(snap.Messages)-1].Content)

	rec = do(t, h, http.MethodPost, "/assistant/executing/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var conflict map[string]interface{}
	decode(t, rec, &conflict)
	assert.Equal(t, "PROCESSING", conflict["state"])

	rec = do(t, h, http.MethodGet, "/assistant/behavior", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"PROCESSING"`)
}

func TestAssistantVoiceRequiresField(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, ws.Handler(), http.MethodPut, "/assistant/listen/voice", `{}`).Code)
}

func TestPostEventReachesConversation(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/assistant/events", `{"id":"ev-1","type":"MESSAGE","timestamp":1700000000000,"payload":{"content":"Hello there","tts":false}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"id":"ev-1"}`, rec.Body.String())

	require.Eventually(t, func() bool {
		for _, m := range eng.Conversation.Messages() {
			if m.Type == conversation.TypeAssistant && m.Content == "Hello there" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/assistant/events", `{"id":"x","type":"NOPE","payload":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/assistant/events?delayMs=-1", `{"id":"y","type":"MESSAGE","payload":{"content":"a"}}`).Code)
}

const ruleBody = `{
	"name": "Evening lights",
	"trigger": {"type": "time", "time": "18:30", "repeat": true},
	"actions": [{"type": "turn_on", "deviceId": "lamp-1", "deviceName": "living room lamp"}]
}`

func TestRuleCRUD(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/automations/rules", ruleBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view struct {
		Rule struct {
			ID      string `json:"id"`
			Enabled bool   `json:"enabled"`
			Name    string `json:"name"`
		} `json:"rule"`
		Sentence string     `json:"sentence"`
		Summary  string     `json:"summary"`
		NextRun  *time.Time `json:"nextRun"`
	}
	decode(t, rec, &view)
	id := view.Rule.ID
	require.NotEmpty(t, id)
	assert.True(t, view.Rule.Enabled)
	assert.Contains(t, view.Sentence, "living room lamp")
	assert.NotNil(t, view.NextRun)

	rec = do(t, h, http.MethodPatch, "/automations/rules/"+id, `{"name":"Night lights"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, "Night lights", view.Rule.Name)

	rec = do(t, h, http.MethodPost, "/automations/rules/"+id+"/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view.NextRun = nil
	decode(t, rec, &view)
	assert.False(t, view.Rule.Enabled)
	assert.Nil(t, view.NextRun)

	rec = do(t, h, http.MethodGet, "/automations/rules?enabled=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/automations/rules/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/automations/rules/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/automations/rules/"+id+"/toggle", "").Code)
}

func TestRuleValidation(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	h := ws.Handler()
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/automations/rules", `{"name":"x","actions":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/automations/rules", `{"name":"x","trigger":{"type":"moon"},"actions":[]}`).Code)
}

func TestRulePatchValidation(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/automations/rules", ruleBody).Code)
	id := eng.Automations.Rules()[0].ID
	before, _ := eng.Automations.Rule(id)

	for name, body := range map[string]string{
		"device action without device": `{"actions":[{"type":"turn_on"}]}`,
		"notify without message":       `{"actions":[{"type":"notify","message":"  "}]}`,
		"unknown condition operator":   `{"conditions":[{"type":"xor"}]}`,
		"blank name":                   `{"name":"   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/automations/rules/"+id, body).Code)
		})
	}

	after, _ := eng.Automations.Rule(id)
	assert.Equal(t, before.Actions, after.Actions)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestPreview(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	rec := do(t, ws.Handler(), http.MethodPost, "/automations/preview", ruleBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	decode(t, rec, &out)
	assert.Contains(t, out["sentence"], "living room lamp")
	assert.Contains(t, out, "blocks")
}

func TestRendererCachesByRevision(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/automations/rules", ruleBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	rules := eng.Automations.Rules()
	require.Len(t, rules, 1)
	id := rules[0].ID

	do(t, h, http.MethodGet, "/automations/rules/"+id, "")
	do(t, h, http.MethodGet, "/automations/rules", "")
	rec = do(t, h, http.MethodGet, "/automations/rules/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(2 * time.Millisecond)
	rec = do(t, h, http.MethodPatch, "/automations/rules/"+id, `{"location":"kitchen"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "in the kitchen")
}

func TestDraftPromote(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/automations/draft", "").Code)

	rec := do(t, h, http.MethodPut, "/automations/draft", `{"name":"Porch"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"missing"`)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/automations/draft/promote", "").Code)

	rec = do(t, h, http.MethodPatch, "/automations/draft", `{"trigger":{"type":"time","time":"07:00","repeat":true},"actions":[{"type":"turn_off","deviceId":"porch-1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/automations/draft/promote", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, eng.Automations.Rules(), 1)
	_, ok := eng.Automations.Draft()
	assert.False(t, ok)
}

func TestTrustRoutes(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPut, "/automations/trust/turn_on", `{"trustLevel":"auto_approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actionType":"turn_on","trustLevel":"auto_approve"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/automations/trust/turn_on", `{"trustLevel":"always"}`).Code)

	rec = do(t, h, http.MethodGet, "/automations/trust", "")
	assert.Contains(t, rec.Body.String(), `"turn_on":"auto_approve"`)
}

func TestSettingsRoutes(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPatch, "/settings", `{"voice":{"voiceSpeed":1.5}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.5, eng.Settings.Get().Voice.VoiceSpeed)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/settings", `{"voice":{"voiceSpeed":0}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/settings", `{"unknown":true}`).Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/settings", "").Code)
	assert.Equal(t, 1.0, eng.Settings.Get().Voice.VoiceSpeed)
}

func TestConversationRoutes(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/conversation/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry conversation.Entry
	decode(t, rec, &entry)
	assert.Equal(t, conversation.TypeUser, entry.Type)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/conversation/messages", `{"role":"robot","content":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/conversation/suggestions/"+entry.ID+"/approve", "").Code)

	id := eng.Conversation.AddSuggestion("Turn on the fan?", conversation.SuggestionData{ActionType: "turn_on", TargetID: "fan-1", RequiresApproval: true})
	rec = do(t, h, http.MethodPost, "/conversation/suggestions/"+id+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &entry)
	require.NotNil(t, entry.Approved)
	assert.False(t, *entry.Approved)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/conversation/suggestions/"+id+"/approve", "").Code)

	rec = do(t, h, http.MethodGet, "/conversation/reasoning", "")
	assert.Contains(t, rec.Body.String(), `"capacity":20`)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/conversation", "").Code)
	assert.Zero(t, eng.Conversation.Len())
}

func TestWebsocketSnapshot(t *testing.T) {
	ws, eng := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.Hub().Run(ctx)

	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame models.SnapshotFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "snapshot", frame.Type)
	assert.Equal(t, interaction.Idle, frame.State.State)
	assert.Nil(t, frame.Reasoning)

	require.Eventually(t, func() bool { return ws.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, eng.Machine.StartListening())

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, interaction.Listening, frame.State.State)
}

func TestRuleConditionsDryRun(t *testing.T) {
	ws, _ := newTestServer(t, nil)
	h := ws.Handler()

	rec := do(t, h, http.MethodPost, "/automations/rules", `{
		"name": "Cool down",
		"trigger": {"type": "sensor", "sensorType": "temperature", "operator": ">", "value": 25},
		"conditions": [{"type": "and",
			"left": {"operator": ">", "value": 25, "sensorType": "temperature"},
			"right": {"operator": "=", "value": false, "deviceId": "window-1", "property": "open"}}],
		"actions": [{"type": "turn_on", "deviceId": "fan-1"}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view struct {
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
	}
	decode(t, rec, &view)
	path := "/automations/rules/" + view.Rule.ID + "/conditions"

	rec = do(t, h, http.MethodPost, path, `{"sensors":{"temperature":28},"devices":{"window-1":{"open":false}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"met":true,"conditions":[true]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, path, `{"sensors":{"temperature":28},"devices":{"window-1":{"open":true}}}`)
	assert.JSONEq(t, `{"met":false,"conditions":[false]}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/automations/rules/nope/conditions", `{}`).Code)
}
