package dto

type CreateCredentialRequest struct {
	Host     string `json:"host" binding:"required,max=255"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
	Enabled  *bool  `json:"enabled"`
}

// UpdateCredentialRequest leaves nil fields untouched.
type UpdateCredentialRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// CredentialResponse never carries the password.
type CredentialResponse struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

type ListCredentialsResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
	Count       int                  `json:"count"`
}
