package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/generic"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/getevo/restify"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hlandau/passlib"
	"gorm.io/gorm"
)

// User type constants
const (
	UserTypeMember        = "member"
	UserTypeAdministrator = "administrator"
)

// JWT configuration
var JWTSecret []byte

// InitializeJWTSecret should be called during app initialization (Register or WhenReady)
func InitializeJWTSecret() {
	secret := settings.Get("JWT.SECRET").String()
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		// Development fallback - should be changed in production
		log.Warning("JWT_SECRET not set, using development key. Change this in production!")
		secret = "your-secret-key-change-this-in-production"
	}
	JWTSecret = []byte(secret)
}

// JWT Claims structure
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// User is the identity users authenticate as
type User struct {
	UserID       uuid.UUID `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	Name         string    `gorm:"column:name;size:255;not null" json:"name"`
	LastName     string    `gorm:"column:last_name;size:255" json:"last_name"`
	DisplayName  string    `gorm:"column:display_name;size:255" json:"display_name"`
	Email        string    `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash *string   `gorm:"column:password_hash;size:255" json:"-"`
	Type         string    `gorm:"column:type;size:50;not null;default:member;check:type IN ('member','administrator')" json:"type"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	restify.API
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to generate UUID for User
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// Evo UserInterface implementation
func (u *User) GetFirstName() string {
	return u.Name
}

func (u *User) GetLastName() string {
	return u.LastName
}

func (u *User) GetFullName() string {
	return u.DisplayName
}

func (u *User) GetEmail() string {
	return u.Email
}

func (u *User) UUID() string {
	return u.UserID.String()
}

func (u *User) ID() uint64 {
	// Convert UUID to uint64 for compatibility
	return uint64(u.UserID.ID())
}

func (u *User) Interface() interface{} {
	return u
}

func (u *User) Anonymous() bool {
	return u.UserID == uuid.Nil
}

func (u *User) HasPermission(permission string) bool {
	return u.Type == UserTypeAdministrator
}

func (u *User) Attributes() evo.Attributes {
	var m evo.Attributes
	generic.Parse(u).Cast(&m)
	return m
}

// FromRequest extracts user from JWT token in request
func (u *User) FromRequest(request *evo.Request) evo.UserInterface {
	authToken, ok := GetAuthToken(request)
	if !ok || authToken == "" {
		return u
	}

	if !strings.HasPrefix(authToken, "Bearer ") {
		return u
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authToken, "Bearer "))

	user, err := UserFromToken(tokenString)
	if err != nil {
		log.Debug("JWT authentication failed: %v", err)
		return u
	}
	return user
}

// UserFromToken validates a JWT token string and loads the matching user.
// Livechat uses it directly because WebSocket upgrades carry the token in
// the path rather than a header.
func UserFromToken(tokenString string) (*User, error) {
	if len(JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT secret is not initialized")
	}

	jwtToken, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if !jwtToken.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	claims, ok := jwtToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	var user User
	if err := db.Where("id = ?", claims.UserID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user %s not found", claims.UserID)
	}

	return &user, nil
}

// SetPassword hashes and stores the password on the struct, the caller
// persists it
func (u *User) SetPassword(password string) error {
	hash, err := passlib.Hash(password)
	if err != nil {
		return err
	}
	u.PasswordHash = &hash
	return nil
}

// VerifyPassword checks a plaintext password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == nil {
		return false
	}
	_, err := passlib.Verify(password, *u.PasswordHash)
	return err == nil
}

// GenerateJWT issues a signed token for the user
func (u *User) GenerateJWT() (string, error) {
	claims := Claims{
		UserID: u.UserID.String(),
		Email:  u.Email,
		Name:   u.GetFullName(),
		Type:   u.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// GetAuthToken retrieves the authentication token from the request.
// It first tries the "X-Authorization" and "Authorization" headers, then
// falls back to the "Authorization" cookie.
func GetAuthToken(request *evo.Request) (string, bool) {
	var token = request.Header("X-Authorization")
	if token == "" {
		token = request.Header("Authorization")
	}
	if token == "" {
		token = request.Cookie("Authorization")
	}
	return token, true
}
