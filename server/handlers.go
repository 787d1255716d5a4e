package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"duochat/db"
	"duochat/models"
	"duochat/relay"
)

type userResponse struct {
	models.User
	IsOnline bool `json:"isOnline"`
}

type authResponse struct {
	models.User
	Token string `json:"token"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps component sentinels onto HTTP statuses. Anything
// unmapped is an infrastructure failure.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrSelfRequest),
		errors.Is(err, relay.ErrEmptyMessage):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrAlreadyFriends),
		errors.Is(err, db.ErrAlreadyRequested),
		errors.Is(err, db.ErrReciprocalPending),
		errors.Is(err, db.ErrNoSuchRequest),
		errors.Is(err, db.ErrUserExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, relay.ErrNotFriends):
		s.writeError(w, http.StatusForbidden, err.Error())
	default:
		s.log.Error("internal error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		Avatar     string `json:"avatar"`
		AvatarType string `json:"avatarType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user, err := s.db.CreateUser(req.Username, req.Email, req.Password, req.Avatar, req.AvatarType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	token, err := s.tokens.issue(user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.db.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.writeDomainError(w, err)
		return
	}

	token, err := s.tokens.issue(user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.db.GetUser(currentUserID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSetAvatar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Avatar     string `json:"avatar"`
		AvatarType string `json:"avatarType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Avatar == "" {
		s.writeError(w, http.StatusBadRequest, "avatar is required")
		return
	}
	if req.AvatarType != models.AvatarEmoji && req.AvatarType != models.AvatarImage {
		s.writeError(w, http.StatusBadRequest, "avatarType must be emoji or image")
		return
	}

	if err := s.db.SetAvatar(currentUserID(r), req.Avatar, req.AvatarType); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "avatar updated"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	users, err := s.db.SearchUsers(currentUserID(r), query)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.annotateOnline(users))
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.db.Friends(currentUserID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.annotateOnline(friends))
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	requesters, err := s.db.IncomingRequests(currentUserID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.annotateOnline(requesters))
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["id"]
	if err := s.db.SendFriendRequest(currentUserID(r), target); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "friend request sent"})
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	requester := mux.Vars(r)["id"]
	if err := s.db.AcceptFriendRequest(currentUserID(r), requester); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "friend request accepted"})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	n := 4
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	contacts, err := s.db.RecentContacts(currentUserID(r), n)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	registry := s.engine.Registry()
	for i := range contacts {
		contacts[i].IsOnline = registry.IsOnline(contacts[i].ID)
	}
	if contacts == nil {
		contacts = []models.RecentContact{}
	}
	s.writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
		FileURL    string `json:"fileUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReceiverID == "" {
		s.writeError(w, http.StatusBadRequest, "receiverId is required")
		return
	}

	msg, err := s.engine.SendMessage(currentUserID(r), req.ReceiverID, req.Content, req.FileURL)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	messagesRelayed.Inc()
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	otherID := mux.Vars(r)["otherID"]

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	messages, err := s.db.Messages(currentUserID(r), otherID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	otherID := mux.Vars(r)["otherID"]
	if err := s.engine.MarkRead(currentUserID(r), otherID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "marked read"})
}

func (s *Server) annotateOnline(users []models.User) []userResponse {
	registry := s.engine.Registry()
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{User: u, IsOnline: registry.IsOnline(u.ID)})
	}
	return out
}
