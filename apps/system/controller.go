package system

import (
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/iesreza/assistant-backend/apps/auth"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/redis"
	"github.com/iesreza/assistant-backend/lib/response"
)

type Controller struct{}

func (c Controller) HealthHandler(request *evo.Request) any {
	return response.OK("ok")
}

func (c Controller) UptimeHandler(request *evo.Request) any {
	uptimeData := map[string]any{
		"uptime": int64(time.Since(StartupTime).Seconds()),
	}
	return response.OK(uptimeData)
}

// AdminMiddleware restricts a route subtree to administrators
func (c Controller) AdminMiddleware(request *evo.Request) error {
	if request.User().Anonymous() {
		return response.ErrForbidden
	}
	user, ok := request.User().Interface().(*auth.User)
	if !ok || user.Type != auth.UserTypeAdministrator {
		return response.ErrForbidden
	}
	return request.Next()
}

// GetSettings returns all database settings
func (c Controller) GetSettings(request *evo.Request) interface{} {
	category := request.Query("category").String()
	if category != "" {
		settings, err := models.GetSettingsByCategory(category)
		if err != nil {
			return response.Error(response.ErrInternalError)
		}
		return response.OK(settings)
	}

	var settings []models.Setting
	if err := db.Find(&settings).Error; err != nil {
		return response.Error(response.ErrInternalError)
	}
	return response.OK(settings)
}

// GetSetting returns a single setting by key
func (c Controller) GetSetting(request *evo.Request) interface{} {
	setting, err := models.GetSetting(request.Param("key").String())
	if err != nil {
		return response.Error(response.ErrNotFound)
	}
	return response.OK(setting)
}

// SetSettingInput is the update-setting request body
type SetSettingInput struct {
	Value    string `json:"value"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Label    string `json:"label"`
}

// SetSetting creates or updates a setting
func (c Controller) SetSetting(request *evo.Request) interface{} {
	var input SetSettingInput
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}

	key := request.Param("key").String()
	if err := models.SetSetting(key, input.Value, input.Type, input.Category, input.Label); err != nil {
		return response.Error(response.ErrInternalError)
	}
	return response.OKWithMessage(nil, "Setting saved")
}

// BulkUpdateSettings updates several settings in one transaction
func (c Controller) BulkUpdateSettings(request *evo.Request) interface{} {
	var input map[string]string
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if len(input) == 0 {
		return response.Error(response.ErrInvalidInput)
	}

	if err := models.BulkUpdateSettings(input); err != nil {
		return response.Error(response.ErrInternalError)
	}
	return response.OKWithMessage(nil, "Settings saved")
}

// DeleteSetting removes a setting
func (c Controller) DeleteSetting(request *evo.Request) interface{} {
	if err := models.DeleteSetting(request.Param("key").String()); err != nil {
		return response.Error(response.ErrInternalError)
	}
	return response.OKWithMessage(nil, "Setting deleted")
}

// GetRateLimits returns the configurable rate limit endpoints with their
// effective values
func (c Controller) GetRateLimits(request *evo.Request) interface{} {
	return response.OK(redis.GetRateLimitSettings())
}

// RateLimitInput is the update-rate-limit request body
type RateLimitInput struct {
	MaxRequests int  `json:"max_requests"`
	WindowSecs  int  `json:"window_seconds"`
	Enabled     bool `json:"enabled"`
}

// SetRateLimit updates the rate limit configuration of one endpoint
func (c Controller) SetRateLimit(request *evo.Request) interface{} {
	var input RateLimitInput
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if input.MaxRequests <= 0 || input.WindowSecs <= 0 {
		return response.Error(response.ErrInvalidInput)
	}

	key := request.Param("key").String()
	known := false
	for _, endpoint := range redis.DefaultEndpoints {
		if endpoint.Key == key {
			known = true
			break
		}
	}
	if !known {
		return response.Error(response.ErrNotFound)
	}

	if err := redis.SaveRateLimitSetting(key, input.MaxRequests, input.WindowSecs, input.Enabled); err != nil {
		return response.Error(response.ErrInternalError)
	}
	return response.OKWithMessage(nil, "Rate limit saved")
}
