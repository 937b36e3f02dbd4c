package auth

const (
	ScopeOpenID       = "openid"
	ScopeProfile      = "profile"
	ScopeEmail        = "email"
	ScopeResolveRead  = "resolve:read"
	ScopeResolveWrite = "resolve:write"
)

// AllScopes defines the full set of scopes requested by the API docs page
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeResolveRead,
	ScopeResolveWrite,
}
