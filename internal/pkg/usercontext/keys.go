package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
	KeyIsAdmin     = "isAdmin"
	KeyAuthMethod  = "auth_method"
)

// Authentication methods recorded on the context.
const (
	AuthJWT    = "jwt"
	AuthAPIKey = "api_key"
)
