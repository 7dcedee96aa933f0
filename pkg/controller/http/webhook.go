package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/usecase"
	"github.com/secmon-lab/briareus/pkg/utils/async"
	"github.com/secmon-lab/briareus/pkg/utils/errutil"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
	"github.com/secmon-lab/briareus/pkg/utils/safe"
)

// identityAliases are the field names, in order, that may carry a user
// identity in a webhook payload
var identityAliases = []string{"userId", "user_id", "id", "userPrincipalName", "user", "email"}

// statusAliases are the field names, in order, that may carry a presence
// status
var statusAliases = []string{"presence", "status", "availability", "presence_status", "state"}

// webhookHandler accepts presence change notifications. The sender is not
// trusted to retry, so the handler answers 200 for everything; extraction
// failures are logged, never surfaced. When a verifier is installed,
// entries must carry the client state the live subscription was created
// with, or they are dropped without touching the cache.
type webhookHandler struct {
	uc          *usecase.UseCases
	verifyState func(string) bool
}

func newWebhookHandler(uc *usecase.UseCases, verifyState func(string) bool) *webhookHandler {
	return &webhookHandler{uc: uc, verifyState: verifyState}
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Validation handshake: the token arrives as a query parameter or a
	// body field, and must be echoed back verbatim
	if token := r.URL.Query().Get("validationToken"); token != "" {
		writeChallenge(w, token)
		return
	}
	if token := r.URL.Query().Get("challenge"); token != "" {
		writeChallenge(w, token)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Still 200: a non-2xx would only provoke sender retries
		errutil.Log(ctx, goerr.Wrap(err, "failed to read webhook body"), "webhook body unreadable, acknowledging anyway")
		w.WriteHeader(http.StatusOK)
		return
	}
	defer safe.Close(ctx, r.Body)

	if len(body) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			logging.From(ctx).Warn("webhook body is not a JSON object, ignoring",
				"error", err.Error(), "bytes", len(body))
			w.WriteHeader(http.StatusOK)
			return
		}

		if token := challengeToken(payload); token != "" {
			writeChallenge(w, token)
			return
		}

		events := h.extractEvents(ctx, payload)

		// Ack before processing; the sender only needs delivery
		w.WriteHeader(http.StatusOK)

		if len(events) == 0 {
			logging.From(ctx).Debug("webhook payload carried no presence events", "bytes", len(body))
			return
		}

		async.Dispatch(ctx, func(ctx context.Context) error {
			for _, event := range events {
				if err := h.uc.ApplyWebhookEvent(ctx, event); err != nil {
					errutil.Log(ctx, err, "failed to apply webhook event")
				}
			}
			return nil
		})
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeChallenge(w http.ResponseWriter, token string) {
	writeJSON(w, http.StatusOK, map[string]string{"challenge": token})
}

// challengeToken pulls a validation token out of a JSON body
func challengeToken(payload map[string]any) string {
	for _, key := range []string{"challenge", "validationToken"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// extractEvents tries each known payload shape in order and returns the
// events of the first shape that yields any:
//
//  1. a notification batch: value[] entries carrying resourceData
//  2. a generic batch: events[] entries
//  3. a single flat object with aliased fields
//
// Entries that match a shape but lack identity or status are skipped with
// a log line; they never fail the batch.
func (h *webhookHandler) extractEvents(ctx context.Context, payload map[string]any) []*usecase.WebhookEvent {
	if entries, ok := payload["value"].([]any); ok {
		return h.eventsFromEntries(ctx, entries)
	}
	if entries, ok := payload["events"].([]any); ok {
		return h.eventsFromEntries(ctx, entries)
	}

	if !h.verified(payload) {
		logging.From(ctx).Warn("dropping webhook payload with unverified client state")
		return nil
	}
	if event := eventFromObject(payload); event != nil {
		return []*usecase.WebhookEvent{event}
	}
	return nil
}

func (h *webhookHandler) eventsFromEntries(ctx context.Context, entries []any) []*usecase.WebhookEvent {
	var events []*usecase.WebhookEvent
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			logging.From(ctx).Warn("skipping non-object webhook entry", "index", i)
			continue
		}
		if !h.verified(obj) {
			logging.From(ctx).Warn("dropping webhook entry with unverified client state", "index", i)
			continue
		}

		event := eventFromObject(obj)
		if event == nil {
			logging.From(ctx).Warn("skipping webhook entry without identity or status", "index", i)
			continue
		}
		events = append(events, event)
	}
	return events
}

// verified checks the entry's clientState against the installed verifier.
// Without a verifier every entry passes.
func (h *webhookHandler) verified(obj map[string]any) bool {
	if h.verifyState == nil {
		return true
	}
	state, _ := obj["clientState"].(string)
	return h.verifyState(state)
}

// eventFromObject resolves identity and status from one entry, looking in
// the nested resourceData object first and the entry itself second
func eventFromObject(obj map[string]any) *usecase.WebhookEvent {
	sources := []map[string]any{obj}
	if rd, ok := obj["resourceData"].(map[string]any); ok {
		sources = []map[string]any{rd, obj}
	}

	id := firstString(sources, identityAliases)
	status := firstString(sources, statusAliases)
	if id == "" || status == "" {
		return nil
	}

	return &usecase.WebhookEvent{
		UserID:    model.UserID(id),
		RawStatus: status,
	}
}

func firstString(sources []map[string]any, keys []string) string {
	for _, src := range sources {
		for _, key := range keys {
			if v, ok := src[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
