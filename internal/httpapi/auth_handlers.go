package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bookshelf.org/internal/apperr"
	"bookshelf.org/internal/audit"
	"bookshelf.org/internal/auth"
	"bookshelf.org/internal/db"
)

const signupSucceededMessage = "User succesfully created."

type signupRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	AccessToken string   `json:"accessToken"`
}

type meResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var body signupRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req := auth.SignupRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Roles:    body.Roles,
	}

	ctx := r.Context()
	if err := a.auth.CheckSignup(ctx, req); err != nil {
		_ = audit.LogEvent(ctx, audit.SignupRejected, map[string]any{
			"username": strings.TrimSpace(req.Username),
			"reason":   apperr.KindOf(err).String(),
		})
		a.respondError(w, r, err, "Signup failed.")
		return
	}
	if err := a.auth.Register(ctx, req); err != nil {
		a.log.ErrorContext(ctx, "signup failed",
			"request_id", audit.RequestIDFromContext(ctx),
			"username", strings.TrimSpace(req.Username),
			"kind", apperr.KindOf(err).String(),
		)
		a.respondError(w, r, err, "Signup failed.")
		return
	}

	_ = audit.LogEvent(ctx, audit.SignupSucceeded, map[string]any{
		"username": strings.TrimSpace(req.Username),
		"roles":    req.Roles,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": signupSucceededMessage})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		_ = audit.LogEvent(ctx, audit.LoginFailed, map[string]any{
			"username": strings.TrimSpace(body.Username),
		})
		a.respondError(w, r, auth.ErrInvalidCredentials, "Login failed.")
		return
	}

	res, err := a.auth.Authenticate(ctx, body.Username, body.Password)
	if err != nil {
		if apperr.Is(err, apperr.Authentication) {
			_ = audit.LogEvent(ctx, audit.LoginFailed, map[string]any{
				"username": strings.TrimSpace(body.Username),
			})
		} else {
			a.log.ErrorContext(ctx, "login failed",
				"request_id", audit.RequestIDFromContext(ctx),
				"kind", apperr.KindOf(err).String(),
			)
		}
		a.respondError(w, r, err, "Login failed.")
		return
	}

	ctx = auth.ContextWithUserID(ctx, res.User.ID)
	_ = audit.LogEvent(ctx, audit.LoginSucceeded, map[string]any{
		"username": res.User.Username,
		"roles":    res.Roles,
	})
	roles := res.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, loginResponse{
		ID:          res.User.ID,
		Username:    res.User.Username,
		Email:       res.User.Email,
		Roles:       roles,
		AccessToken: res.AccessToken,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:       p.user.ID,
		Username: p.user.Username,
		Email:    p.user.Email,
		Roles:    p.roles,
	})
}

// respondError maps a classified failure to a response. Only validation,
// authentication and not-found messages reach the client; everything else
// gets fallback.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrUsernameTaken) || errors.Is(err, auth.ErrEmailTaken) || errors.Is(err, db.ErrDuplicate) {
			status = http.StatusConflict
		}
		writeError(w, r, status, clientMessage(err, "invalid request"))
	case apperr.Authentication:
		writeError(w, r, http.StatusUnauthorized, clientMessage(err, "invalid credentials"))
	case apperr.NotFound:
		writeError(w, r, http.StatusNotFound, clientMessage(err, "not found"))
	default:
		writeError(w, r, http.StatusInternalServerError, fallback)
	}
}

func clientMessage(err error, def string) string {
	if msg := apperr.Message(err); msg != "" {
		return msg
	}
	return def
}
