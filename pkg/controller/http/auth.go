package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/usecase"
	"github.com/secmon-lab/briareus/pkg/utils/errutil"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

const stateCookieName = "auth_state"

// authLoginHandler starts the delegated authorization flow for the
// calendar credential
func authLoginHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		state := uuid.New().String()

		authURL, err := uc.TokenManager().BeginLogin(types.ScopeCalendarDelegated, state)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to build authorization URL"), http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     "/api/auth",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   600,
		})

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// authCallbackHandler completes the delegated flow: the authorization code
// is exchanged for tokens and the credential becomes refreshable without
// further interaction.
func authCallbackHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		code := r.URL.Query().Get("code")
		if code == "" {
			errutil.HandleHTTP(ctx, w, goerr.New("missing authorization code"), http.StatusBadRequest)
			return
		}

		stateCookie, err := r.Cookie(stateCookieName)
		if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
			errutil.HandleHTTP(ctx, w, goerr.New("state mismatch"), http.StatusBadRequest)
			return
		}

		operator, err := uc.TokenManager().CompleteLogin(ctx, types.ScopeCalendarDelegated, code)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to complete login"), http.StatusInternalServerError)
			return
		}

		// Clear the state cookie
		http.SetCookie(w, &http.Cookie{
			Name:   stateCookieName,
			Path:   "/api/auth",
			MaxAge: -1,
		})

		logging.From(ctx).Info("delegated login completed",
			"email", operator.Email, "name", operator.Name)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"email":   operator.Email,
		})
	}
}
