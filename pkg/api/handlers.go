package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/directory"
	"codeberg.org/aliassync/aliassync/pkg/hook"
	"codeberg.org/aliassync/aliassync/pkg/reconcile"
	"go.uber.org/zap"
)

const (
	identitiesPath = "/apis/aliassync/v1/identities/"
	syncPath       = "/apis/aliassync/v1/sync/"
	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func loginFromPath(path, prefix string) (string, error) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return "", fmt.Errorf("login required")
	}
	return url.PathUnescape(raw)
}

// DeletionView is the wire form of one reconcile.Deletion.
type DeletionView struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SyncView struct {
	Login      string         `json:"login"`
	Outcome    string         `json:"outcome"`
	Identities any            `json:"identities"`
	Deletions  []DeletionView `json:"deletions,omitempty"`
	Changed    bool           `json:"changed"`
	Error      string         `json:"error,omitempty"`
}

func NewSyncView(login string, outcome hook.Outcome, res *reconcile.Result) SyncView {
	v := SyncView{
		Login:      login,
		Outcome:    string(outcome.Kind),
		Identities: outcome.Identities,
	}
	if outcome.Err != nil {
		v.Error = outcome.Err.Error()
	}
	if res == nil {
		return v
	}
	v.Changed = res.Changed
	for _, d := range res.Deletions {
		dv := DeletionView{ID: d.ID, Email: d.Email, Status: string(d.Status)}
		if d.Err != nil {
			dv.Error = d.Err.Error()
		}
		v.Deletions = append(v.Deletions, dv)
	}
	return v
}

func SetupRoutes(mux *http.ServeMux, reg *hook.Registry, syncer *hook.Syncer, log *audit.Log, logger *zap.Logger) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/hooks/user2email", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}

		var in hook.LoginEvent
		if err := json.Unmarshal(b, &in); err != nil {
			logger.Warn("Invalid hook payload", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		out, err := reg.Dispatch(ctx, hook.EventUser2Email, in)
		if err != nil {
			logger.Error("Hook dispatch failed", zap.Error(err))
			http.Error(w, "No handler", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, out, logger)
	})

	mux.HandleFunc(identitiesPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		login, err := loginFromPath(r.URL.EscapedPath(), identitiesPath)
		if err != nil {
			http.Error(w, "Login required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		key, ids, err := syncer.Lookup(ctx, login)
		if err != nil {
			status := http.StatusBadGateway
			if derr, ok := directory.AsError(err); ok && derr.Category == directory.CategoryValidation {
				status = http.StatusBadRequest
			}
			logger.Error("Directory preview failed", zap.String("login", login), zap.Error(err))
			writeJSON(w, status, map[string]string{
				"error": fmt.Sprintf("Directory lookup failed: %v", err),
			}, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"login": login,
			"key":   key,
			"identities": map[string]any{
				"count": len(ids),
				"items": ids,
			},
		}, logger)
	})

	mux.HandleFunc(syncPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		login, err := loginFromPath(r.URL.EscapedPath(), syncPath)
		if err != nil {
			http.Error(w, "Login required", http.StatusBadRequest)
			return
		}

		logger.Info("Manual sync triggered",
			zap.String("login", login),
			zap.String("remote_addr", r.RemoteAddr))

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		outcome, res := syncer.Sync(ctx, login)
		status := http.StatusOK
		if outcome.Kind == hook.OutcomeDirectoryError {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, NewSyncView(login, outcome, res), logger)
	})

	mux.HandleFunc("/apis/aliassync/v1/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if log == nil {
			writeJSON(w, http.StatusOK, map[string]any{"entries": []audit.Entry{}}, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"counts":  log.Counts(),
			"entries": log.Entries(),
		}, logger)
	})
}
