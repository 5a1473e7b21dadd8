package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"YOGA_TRAINER/posecoach/internal/database"
	"YOGA_TRAINER/posecoach/internal/models"
)

const sessionCookie = "session_id"

type AccountStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int) (models.User, error)
}

// AuthSessions maps login cookies to user ids.
type AuthSessions struct {
	mu     sync.RWMutex
	tokens map[string]int
}

func NewAuthSessions() *AuthSessions {
	return &AuthSessions{tokens: make(map[string]int)}
}

// Create starts a new login for userID, dropping any older one.
func (s *AuthSessions) Create(userID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, id := range s.tokens {
		if id == userID {
			delete(s.tokens, token)
		}
	}
	token := uuid.NewString()
	s.tokens[token] = userID
	return token
}

func (s *AuthSessions) Lookup(token string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

func (s *AuthSessions) Delete(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// UserID resolves the login cookie of r.
func (s *AuthSessions) UserID(r *http.Request) (int, bool) {
	if s == nil {
		return 0, false
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return 0, false
	}
	return s.Lookup(cookie.Value)
}

// API serves the account and activity REST endpoints.
type API struct {
	accounts   AccountStore
	activities ActivityStore
	auth       *AuthSessions
	corsOrigin string
	now        func() time.Time
}

func NewAPI(accounts AccountStore, activities ActivityStore, auth *AuthSessions, corsOrigin string) *API {
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return &API{
		accounts:   accounts,
		activities: activities,
		auth:       auth,
		corsOrigin: corsOrigin,
		now:        time.Now,
	}
}

// Routes mounts the REST surface on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", a.Register)
	mux.HandleFunc("/api/auth/login", a.Login)
	mux.HandleFunc("/api/auth/logout", a.Logout)
	mux.HandleFunc("/api/auth/current_user", a.CurrentUser)
	mux.HandleFunc("/api/auth/check", a.AuthCheck)
	mux.HandleFunc("/api/log_activity", a.LogActivity)
	mux.HandleFunc("/api/user/stats", a.UserStats)
	mux.HandleFunc("/api/leaderboard", a.Leaderboard)
	mux.HandleFunc("/api/sessions", a.Sessions)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

func validatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter := false
	hasNumber := false
	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}

func validateUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	return usernameRegex.MatchString(username)
}

func (a *API) enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", a.corsOrigin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")
	w.Header().Set("Content-Type", "application/json")
}

// preflight answers OPTIONS and rejects methods not in allowed.
func (a *API) preflight(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	a.enableCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Timestamp: time.Now().Unix()})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodPost) {
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if !validatePassword(req.Password) {
		writeError(w, http.StatusBadRequest, "Password must be 8-72 characters with at least one letter and one number")
		return
	}
	if !validateUsername(req.Username) {
		writeError(w, http.StatusBadRequest, "Username must be 3-30 characters, alphanumeric and underscore only")
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("Password hashing error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := a.accounts.CreateUser(ctx, req.Email, req.Username, passwordHash)
	if errors.Is(err, database.ErrDuplicate) {
		log.Printf("Registration rejected: %v", err)
		writeError(w, http.StatusConflict, "User already exists: "+err.Error())
		return
	}
	if err != nil {
		log.Printf("Registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
	log.Printf("User registered: %s", req.Email)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodPost) {
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := a.accounts.UserByEmail(ctx, req.Email)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		log.Printf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if old, err := r.Cookie(sessionCookie); err == nil {
		a.auth.Delete(old.Value)
	}
	token := a.auth.Create(user.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, user)
	log.Printf("User logged in: %s", req.Email)
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodPost, http.MethodGet) {
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		a.auth.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out"})
}

func (a *API) CurrentUser(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodGet) {
		return
	}

	userID, ok := a.auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := a.accounts.UserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("CurrentUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AuthCheck never fails; it reports whether the cookie is a valid login.
func (a *API) AuthCheck(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodGet) {
		return
	}
	userID, ok := a.auth.UserID(r)
	resp := map[string]interface{}{"authenticated": ok}
	if ok {
		resp["user_id"] = userID
	}
	writeJSON(w, http.StatusOK, resp)
}
