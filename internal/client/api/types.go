package api

import "encoding/json"

// TokenPair is the access/refresh pair issued at login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResponse is the login endpoint's payload. User is kept as raw JSON
// because the profile shape is owned by the backend; Raw returns the whole
// payload untouched.
type LoginResponse struct {
	Tokens TokenPair       `json:"tokens"`
	User   json.RawMessage `json:"user"`

	raw json.RawMessage
}

func (r *LoginResponse) Raw() json.RawMessage { return r.raw }

// Profile is the backend-reported identity. Unknown fields are dropped;
// callers needing the exact server representation use the raw JSON kept in
// the credential store.
type Profile struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// TokenRotation is the optional token block a server may include on any
// authenticated response. Either access or access_new can carry the
// replacement access token.
type TokenRotation struct {
	Access    string `json:"access"`
	AccessNew string `json:"access_new"`
	Refresh   string `json:"refresh"`
}

// NewAccess returns the replacement access token, preferring access_new.
func (t *TokenRotation) NewAccess() string {
	if t.AccessNew != "" {
		return t.AccessNew
	}
	return t.Access
}

// WhoamiResponse is the "who am I" payload. The backend's representation is
// not fully fixed: the profile may live under "user", under "data", or be
// the payload itself. ProfileJSON applies that ordered fallback chain.
type WhoamiResponse struct {
	User   json.RawMessage `json:"user"`
	Data   json.RawMessage `json:"data"`
	Token  *TokenRotation  `json:"token"`
	Tokens *TokenRotation  `json:"tokens"`

	raw json.RawMessage
}

func (r *WhoamiResponse) Raw() json.RawMessage { return r.raw }

// ParseWhoamiResponse decodes a whoami payload, keeping the raw body for
// the profile fallback chain.
func ParseWhoamiResponse(raw json.RawMessage) (*WhoamiResponse, error) {
	var out WhoamiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out.raw = append(json.RawMessage(nil), raw...)
	return &out, nil
}

// ProfileJSON returns the profile portion of the payload: the explicit
// "user" field if present, then the generic "data" field, then the whole
// payload.
func (r *WhoamiResponse) ProfileJSON() json.RawMessage {
	if isSetJSON(r.User) {
		return r.User
	}
	if isSetJSON(r.Data) {
		return r.Data
	}
	return r.raw
}

// Rotation returns the token block if the server rotated tokens on this
// call, preferring "token" over "tokens".
func (r *WhoamiResponse) Rotation() *TokenRotation {
	if r.Token != nil {
		return r.Token
	}
	return r.Tokens
}

// ResetTokenResponse carries the one-time reset token issued after the
// forgot-password OTP is verified. It authorizes only the change-password
// step and must never be sent as a bearer credential.
type ResetTokenResponse struct {
	ResetToken string `json:"reset_token"`

	raw json.RawMessage
}

func (r *ResetTokenResponse) Raw() json.RawMessage { return r.raw }

func isSetJSON(v json.RawMessage) bool {
	return len(v) > 0 && string(v) != "null"
}
