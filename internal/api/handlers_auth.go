package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/commitkings/commitkings/internal/auth"
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgCode  string `json:"org_code"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type UpdateProfileRequest struct {
	Name     string `json:"name"`
	JobTitle string `json:"job_title"`
}

// currentUser resolves the authenticated identity to its account row.
func (s *CommitKingsApp) currentUser(r *http.Request) (database.User, *ApiError) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		return database.User{}, NewUnauthorizedError()
	}

	user, err := s.db.GetAccountByExternalId(identity.UserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, NewUnauthorizedError()
		}
		return database.User{}, NewInternalServerError(err)
	}

	return user, nil
}

func (s *CommitKingsApp) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" || req.OrgCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role := types.Role(req.Role)
	switch role {
	case types.RoleAdmin, types.RoleReviewer, types.RoleMember:
	case "":
		role = types.RoleMember
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := auth.HashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		ExternalId:   sid,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwdHash,
		OrgCode:      req.OrgCode,
		Role:         string(role),
	})
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := renderUser(newUser)
	token, err := s.verifier.IssueToken(u, auth.DefaultTokenTTL)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, SessionResponse{User: u, Token: token})
}

func (s *CommitKingsApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(req.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !auth.VerifyPassword(dbUser.PasswordHash, req.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := renderUser(dbUser)
	token, err := s.verifier.IssueToken(u, auth.DefaultTokenTTL)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, SessionResponse{User: u, Token: token})
}

func (s *CommitKingsApp) me(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderUser(user))
}

func (s *CommitKingsApp) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		req.Name = user.Name
	}

	updated, err := s.db.UpdateProfile(database.UpdateProfileParams{
		UserId:   user.Id,
		Name:     req.Name,
		JobTitle: req.JobTitle,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderUser(updated))
}
