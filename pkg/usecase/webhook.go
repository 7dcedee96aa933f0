package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

// WebhookEvent is one presence change extracted from an inbound
// notification payload
type WebhookEvent struct {
	UserID    model.UserID
	RawStatus string
}

// ApplyWebhookEvent folds one real-time presence change into the cache.
//
// Identity resolution is non-destructive: a user already cached keeps
// their display name and email; an unknown ID is resolved through the
// roster; a full miss is stored nameless, which keeps it out of query
// responses until a later full fetch fills in the profile.
func (uc *UseCases) ApplyWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.UserID == "" {
		return goerr.Wrap(types.ErrMalformedWebhookEntry, "event has no user identity")
	}
	if event.RawStatus == "" {
		return goerr.Wrap(types.ErrMalformedWebhookEntry, "event has no status",
			goerr.V(types.UserIDKey, event.UserID))
	}

	status := uc.normalizer.Normalize(event.RawStatus)

	upd := presence.Update{
		ID:         event.UserID,
		RawStatus:  event.RawStatus,
		Status:     status,
		Provenance: types.ProvenanceWebhook,
	}

	if _, ok := uc.cache.Lookup(ctx, event.UserID); !ok {
		agent, err := uc.roster.FindByProviderID(ctx, event.UserID)
		switch {
		case err == nil:
			upd.ID = agent.Key()
			upd.DisplayName = agent.DisplayName
			upd.Email = agent.Email
		case errors.Is(err, types.ErrNotFound):
			logging.From(ctx).Debug("webhook event for unknown user, storing without profile",
				"user_id", event.UserID)
		default:
			logging.From(ctx).Warn("roster lookup failed, storing event without profile",
				"user_id", event.UserID, "error", err.Error())
		}
	}

	if err := uc.cache.ApplyUpdate(ctx, upd); err != nil {
		return goerr.Wrap(err, "failed to apply webhook update",
			goerr.V(types.UserIDKey, event.UserID),
			goerr.V(types.StatusKey, status))
	}

	logging.From(ctx).Info("applied webhook presence update",
		"user_id", upd.ID,
		"raw_status", event.RawStatus,
		"status", status.String(),
	)
	return nil
}
