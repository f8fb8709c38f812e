package auth

const (
	ScopeOpenID          = "openid"
	ScopeProfile         = "profile"
	ScopeEmail           = "email"
	ScopeTemplatesRead   = "templates:read"
	ScopeTemplatesCreate = "templates:instantiate"
)

// LoginScopes are requested by the browser login flow.
var LoginScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeTemplatesRead,
	ScopeTemplatesCreate,
}
