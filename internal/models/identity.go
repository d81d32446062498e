package models

// Identity is the authenticated user a chat session is bound to.
type Identity struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Same reports whether both identities refer to the same user and display name.
func (i *Identity) Same(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID && i.Name == other.Name
}

// LoginRequest is the body of POST /user/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginData carries the token and user returned on login.
type LoginData struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

// LoginResponse is the envelope returned by POST /user/login.
type LoginResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    *LoginData `json:"data,omitempty"`
}
