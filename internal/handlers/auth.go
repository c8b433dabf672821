package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/utils"
)

// loginRequest is the login payload
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userRow is the credential projection read from the users table
type userRow struct {
	ID           int64  `gorm:"column:id"`
	FarmID       int64  `gorm:"column:farm_id"`
	Role         string `gorm:"column:role"`
	PasswordHash string `gorm:"column:password_hash"`
}

// login authenticates against the users table and issues a JWT.
// Authentication requires the primary store; there is no offline login.
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" || body.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	var rows []userRow
	err := r.db.WithContext(req.Context()).
		Raw("SELECT `id`, `farm_id`, `role`, `password_hash` FROM `users` WHERE `email` = ? LIMIT 1", body.Email).
		Scan(&rows).Error
	if err != nil {
		if apperr.IsUnavailable(err) {
			respondError(w, http.StatusServiceUnavailable, "Primary store unavailable; login requires a live connection")
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// One generic failure message for unknown email and wrong password
	if len(rows) == 0 || !utils.CheckPasswordHash(body.Password, rows[0].PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	user := rows[0]

	token, err := utils.GenerateToken(user.ID, user.FarmID, user.Role, r.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":      user.ID,
			"farm_id": user.FarmID,
			"role":    user.Role,
		},
	})
}
