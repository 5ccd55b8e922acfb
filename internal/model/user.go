package model

// User is the authenticated account profile.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt Timestamp `json:"created_at"`
}

// Credentials is the body of POST /api/auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the body of POST /api/auth/register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
