package auth

import (
	"strings"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/go-playground/validator/v10"
	"github.com/iesreza/assistant-backend/lib/response"
)

type Controller struct {
}

var validate = validator.New()

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	LastName string `json:"last_name" validate:"max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}

func (c Controller) LoginHandler(request *evo.Request) interface{} {
	var loginReq LoginRequest
	if err := request.BodyParser(&loginReq); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if err := validate.Struct(loginReq); err != nil {
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeValidationError, "Validation failed", 400, err.Error()))
	}

	var user User
	if err := db.Where("email = ?", strings.ToLower(loginReq.Email)).First(&user).Error; err != nil {
		return response.Error(response.NewError(response.ErrorCodeUnauthorized, "Invalid email or password", 401))
	}
	if !user.VerifyPassword(loginReq.Password) {
		return response.Error(response.NewError(response.ErrorCodeUnauthorized, "Invalid email or password", 401))
	}

	accessToken, err := user.GenerateJWT()
	if err != nil {
		log.Error("Failed to generate token for %s: %v", user.Email, err)
		return response.Error(response.ErrInternalError)
	}

	user.PasswordHash = nil
	return response.OK(LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   86400,
		User:        &user,
	})
}

func (c Controller) RegisterHandler(request *evo.Request) interface{} {
	var registerReq RegisterRequest
	if err := request.BodyParser(&registerReq); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if err := validate.Struct(registerReq); err != nil {
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeValidationError, "Validation failed", 400, err.Error()))
	}

	email := strings.ToLower(strings.TrimSpace(registerReq.Email))
	var count int64
	db.Model(&User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return response.Error(response.NewError(response.ErrorCodeInvalidInput, "Email is already registered", 409))
	}

	user := User{
		Name:        registerReq.Name,
		LastName:    registerReq.LastName,
		DisplayName: strings.TrimSpace(registerReq.Name + " " + registerReq.LastName),
		Email:       email,
		Type:        UserTypeMember,
	}
	if err := user.SetPassword(registerReq.Password); err != nil {
		log.Error("Failed to hash password: %v", err)
		return response.Error(response.ErrInternalError)
	}
	if err := db.Create(&user).Error; err != nil {
		log.Error("Failed to create user %s: %v", email, err)
		return response.Error(response.NewError(response.ErrorCodeDatabaseError, "Failed to create account", 500))
	}

	accessToken, err := user.GenerateJWT()
	if err != nil {
		log.Error("Failed to generate token for %s: %v", user.Email, err)
		return response.Error(response.ErrInternalError)
	}

	user.PasswordHash = nil
	return response.Created(LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   86400,
		User:        &user,
	})
}

func (c Controller) ProfileHandler(request *evo.Request) interface{} {
	user, err := RequireUser(request)
	if err != nil {
		return err
	}
	user.PasswordHash = nil
	return response.OK(user)
}
