package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wookiee/ai-assistant/pkg/assistant"
	"github.com/wookiee/ai-assistant/pkg/dedup"
	"github.com/wookiee/ai-assistant/pkg/digest"
	"github.com/wookiee/ai-assistant/pkg/dispatcher"
)

const maxUpdateBytes = 1 << 20

// cronSecretHeader authenticates scheduler calls to /jobs/*.
const cronSecretHeader = "X-CRON-SECRET"

type healthChecker interface {
	Health(ctx context.Context) *assistant.HealthOutput
}

type commandDispatcher interface {
	Dispatch(ctx context.Context, cmd *dispatcher.Command) *dispatcher.Reply
}

type digestRunner interface {
	Run(ctx context.Context, kind digest.Kind) (*digest.Result, error)
}

// routes builds the HTTP handler.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /webhook/telegram", s.handleWebhook)
	mux.HandleFunc("POST /jobs/morning_digest", s.handleDigest(digest.KindMorning))
	mux.HandleFunc("POST /jobs/evening_digest", s.handleDigest(digest.KindEvening))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health.Health(ctx)
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "failed to read body"})
		return
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		slog.Warn(fmt.Sprintf("%s - bad webhook payload: %v", logPrefix, err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid update"})
		return
	}

	// Telegram redelivers until it sees a 2xx, so an update is handled at most once.
	first, err := s.dedup.FirstSeen(r.Context(), dedup.UpdateKey(update.UpdateID))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dedup check for update %d failed, processing anyway: %v", logPrefix, update.UpdateID, err))
		first = true
	}
	if !first {
		slog.Debug(fmt.Sprintf("%s - duplicate update %d", logPrefix, update.UpdateID))
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	cmd, ok := dispatcher.ParseUpdate(&update)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	reply := s.dispatcher.Dispatch(ctx, cmd)
	if err := s.sender.Send(ctx, reply.ChatID, reply.Text); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to reply to /%s for chat %d: %v", logPrefix, cmd.Name, reply.ChatID, err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// digestResponse is the body of /jobs/* responses.
type digestResponse struct {
	Status        string `json:"status"`
	UsersNotified int    `json:"users_notified"`
	Failed        int    `json:"failed"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleDigest(kind digest.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cronAuthorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "error": "unauthorized"})
			return
		}
		// a batch outlives REQUEST_TIMEOUT and client disconnects; DIGEST_BATCH_TIMEOUT bounds it
		ctx, cancel := digest.BatchContext(r.Context(), s.cfg.DigestBatchTimeout)
		defer cancel()

		res, err := s.runner.Run(ctx, kind)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - %s digest failed: %v", logPrefix, kind, err))
			resp := digestResponse{Status: "error", Error: err.Error()}
			if res != nil {
				resp.UsersNotified, resp.Failed = res.Processed, res.Failed
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, http.StatusOK, digestResponse{Status: "ok", UsersNotified: res.Processed, Failed: res.Failed})
	}
}

func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.cfg.CronSecret == "" {
		return true
	}
	got := r.Header.Get(cronSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.CronSecret)) == 1
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", logPrefix, err))
	}
}
