// Package httpapi implements the thin HTTP surface of spec.md §6 as
// handlers over pkg/runtime/pkg/memory, using net/http +
// newline-delimited JSON streaming. Grounded on the teacher's
// pkg/webui/server.go handler style: a Server struct holding
// collaborators, http.HandlerFunc methods, encoding/json
// request/response, a *logx.Logger for request-level logging. This
// layer carries no business logic beyond request/response shaping and
// streaming — the Agent Step Loop and Conversation Runtime own every
// decision the responses report.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmos/pkg/agentloop"
	"llmos/pkg/logx"
	"llmos/pkg/memory"
	"llmos/pkg/metrics"
	"llmos/pkg/personas"
	"llmos/pkg/runtime"
)

// Server is the HTTP surface over a Runtime and a persona Store.
type Server struct {
	rt       *runtime.Runtime
	personas *personas.Store
	logger   *logx.Logger
	metrics  metrics.Recorder
}

// New builds a Server. metrics.Nop() is used when rec is nil.
func New(rt *runtime.Runtime, personaStore *personas.Store, rec metrics.Recorder) *Server {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Server{rt: rt, personas: personaStore, logger: logx.NewLogger("httpapi"), metrics: rec}
}

// Handler returns the configured http.Handler (spec.md §6's endpoint
// table).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversation-ids", s.handleConversationIDs)
	mux.HandleFunc("/personas/agents", s.handlePersonaAgents)
	mux.HandleFunc("/personas/humans", s.handlePersonaHumans)
	mux.HandleFunc("/agent", s.handleAgent)
	mux.HandleFunc("/agent/humans", s.handleAgentHumans)
	mux.HandleFunc("/messages/send", s.handleSend(false, true))
	mux.HandleFunc("/messages/send/first-message", s.handleSend(true, true))
	mux.HandleFunc("/messages/send/no-heartbeat", s.handleSend(false, false))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleConversationIDs serves GET /conversation-ids.
func (s *Server) handleConversationIDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids, err := s.rt.ListConversations()
	if err != nil {
		s.logger.Error("list conversations: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conv_ids": ids})
}

// handlePersonaAgents serves GET /personas/agents.
func (s *Server) handlePersonaAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.personas.ListAgents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona_names": names})
}

// handlePersonaHumans serves GET /personas/humans.
func (s *Server) handlePersonaHumans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.personas.ListHumans()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona_names": names})
}

type createAgentRequest struct {
	AgentPersonaName string `json:"agent_persona_name"`
	HumanPersonaName string `json:"human_persona_name"`
}

type deleteAgentRequest struct {
	ConvName string `json:"conv_name"`
}

// handleAgent serves POST /agent and DELETE /agent.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		convName, err := s.rt.CreateConversation(req.AgentPersonaName, req.HumanPersonaName)
		if err != nil {
			if errors.Is(err, personas.ErrNotFound) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			s.logger.Error("create conversation: %v", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conv_name": convName})
	case http.MethodDelete:
		var req deleteAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.rt.DeleteConversation(req.ConvName); err != nil {
			s.logger.Error("delete conversation: %v", err)
			writeJSON(w, http.StatusOK, map[string]any{"success": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type humanIDsRequest struct {
	ConvName string `json:"conv_name"`
}

type addHumanRequest struct {
	ConvName         string `json:"conv_name"`
	HumanPersonaName string `json:"human_persona_name"`
}

// handleAgentHumans serves GET /agent/humans and POST /agent/humans.
func (s *Server) handleAgentHumans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var req humanIDsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ids, err := s.rt.HumanIDs(r.Context(), req.ConvName)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"human_ids": ids})
	case http.MethodPost:
		var req addHumanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		newID, err := s.rt.AddHuman(r.Context(), req.ConvName, req.HumanPersonaName)
		if err != nil {
			if errors.Is(err, personas.ErrNotFound) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"new_human_id": newID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type sendMessageRequest struct {
	ConvName string `json:"conv_name"`
	UserID   int    `json:"user_id"`
	Message  string `json:"message"`
}

// serverMessage is one server_message_stack entry (spec.md §6).
type serverMessage struct {
	Type      string `json:"type"`
	Arguments any    `json:"arguments"`
}

// ctxInfo mirrors the per-step ctx_info object.
type ctxInfo struct {
	CurrentCtxTokenCount int `json:"current_ctx_token_count"`
	CtxWindow            int `json:"ctx_window"`
}

// stepObject is one streamed per-step object.
type stepObject struct {
	ServerMessageStack []serverMessage `json:"server_message_stack"`
	CtxInfo            ctxInfo         `json:"ctx_info"`
	Duration           float64         `json:"duration,omitempty"`
	TotalDuration      float64         `json:"total_duration,omitempty"`
}

// handleSend builds the handler for one of the three /messages/send
// variants; isFirstMessage and runHeartbeatChain select which.
func (s *Server) handleSend(isFirstMessage, runHeartbeatChain bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		flusher, canFlush := w.(http.Flusher)

		persona := personaFromConvName(req.ConvName)
		start := time.Now()
		results, err := s.rt.Step(r.Context(), req.ConvName, req.UserID, req.Message, isFirstMessage, runHeartbeatChain)
		if err != nil {
			s.logger.Error("step conv=%s: %v", req.ConvName, err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		outbound, err := s.rt.DrainOutbound(req.ConvName)
		if err != nil {
			outbound = nil
		}

		current, window, ctxErr := s.rt.ContextUsage(r.Context(), req.ConvName)
		if ctxErr != nil {
			s.logger.Error("context usage conv=%s: %v", req.ConvName, ctxErr)
		}
		if window > 0 {
			s.metrics.SetMemoryPressure(req.ConvName, float64(current)/float64(window))
		}

		stepStart := start
		for i, res := range results {
			last := i == len(results)-1
			now := time.Now()
			stepDuration := now.Sub(stepStart)
			stepStart = now

			s.metrics.ObserveStep(req.ConvName, persona, 0, 0, last, stepDuration)
			if res.FunctionFailed {
				s.metrics.IncFunctionFailure(req.ConvName, "unknown")
			}

			// send_message (if the model called it at all) is always the
			// step that ends the heartbeat chain, so its assistant text
			// belongs on the final step object.
			var stepOutbound []string
			if last {
				stepOutbound = outbound
			}
			obj := stepObject{
				ServerMessageStack: renderStepMessages(res, stepOutbound),
				CtxInfo:            ctxInfo{CurrentCtxTokenCount: current, CtxWindow: window},
			}
			if last {
				obj.TotalDuration = time.Since(start).Seconds()
			} else {
				obj.Duration = stepDuration.Seconds()
			}
			if err := enc.Encode(obj); err != nil {
				s.logger.Error("encode step object: %v", err)
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

// personaFromConvName extracts the agent persona name from a conv_id
// shaped "{agent}--{human}@{hex}-{hex}" (pkg/runtime's naming
// convention), for use as a metrics label.
func personaFromConvName(convName string) string {
	if i := strings.Index(convName, "--"); i >= 0 {
		return convName[:i]
	}
	return convName
}

// renderStepMessages maps one StepResult onto spec.md §6's
// server_message_stack entry types. outbound holds the assistant-facing
// text this step's send_message call produced, if any.
func renderStepMessages(res agentloop.StepResult, outbound []string) []serverMessage {
	var out []serverMessage

	for _, e := range res.Emotions {
		out = append(out, serverMessage{Type: "inner_emotion", Arguments: map[string]any{"label": e.Label, "intensity": e.Intensity}})
	}
	if len(res.Thoughts) > 0 {
		out = append(out, serverMessage{Type: "internal_monologue", Arguments: map[string]any{"thoughts": res.Thoughts}})
	}
	for _, rec := range res.Records {
		out = append(out, recordToMessage(rec))
	}
	for _, text := range outbound {
		out = append(out, serverMessage{Type: "assistant_message", Arguments: map[string]any{"message": text}})
	}
	if res.FunctionFailed {
		out = append(out, serverMessage{Type: "warning_message", Arguments: map[string]any{"message": "function call failed"}})
	}
	return out
}

func recordToMessage(rec memory.Record) serverMessage {
	args := map[string]any{"content": rec.Content, "user_id": rec.UserID}
	switch rec.Kind {
	case memory.KindUser:
		return serverMessage{Type: "user_message", Arguments: args}
	case memory.KindSystem:
		return serverMessage{Type: "system_message", Arguments: args}
	case memory.KindTool:
		return serverMessage{Type: "function_res_message", Arguments: args}
	case memory.KindAssistant:
		return serverMessage{Type: "function_call_message", Arguments: args}
	default:
		return serverMessage{Type: "debug_message", Arguments: args}
	}
}
