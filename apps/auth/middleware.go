package auth

import (
	"github.com/getevo/evo/v2"
	"github.com/iesreza/assistant-backend/lib/response"
)

// RequireUser returns the authenticated user of the request or an
// unauthorized error when the request is anonymous.
func RequireUser(request *evo.Request) (*User, error) {
	if request.User().Anonymous() {
		return nil, response.ErrUnauthorized
	}
	user, ok := request.User().Interface().(*User)
	if !ok {
		return nil, response.ErrUnauthorized
	}
	return user, nil
}

// OptionalUser returns the authenticated user or nil for anonymous requests.
// Public assistants are usable without an account.
func OptionalUser(request *evo.Request) *User {
	if request.User().Anonymous() {
		return nil
	}
	user, ok := request.User().Interface().(*User)
	if !ok {
		return nil
	}
	return user
}
