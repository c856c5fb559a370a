package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/zhouzirui/chatdesk/backend/internal/service/identity"
)

// CORS 允许浏览器前端跨域访问 API。
var CORS = cors.Handler(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", identity.HeaderName},
	MaxAge:         300,
})
