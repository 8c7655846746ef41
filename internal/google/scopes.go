package google

// DefaultOAuthScopes are requested at sign-in. The OpenID scopes provide the
// ID token carrying the user's email and name; Gmail access is read-only.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/gmail.readonly",
}
