package user

import "time"

// Profile is the durable user record. IsOnline/LastSeen are the
// best-effort presence mirror kept in the document store; the ephemeral
// presence store is authoritative over them for display.
type Profile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Password    string     `json:"-"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Label is the name shown next to this user's messages.
func (p *Profile) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
