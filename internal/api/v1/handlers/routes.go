package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	v1auth "github.com/merchhub/tokensync/internal/api/v1/handlers/auth"
	v1ws "github.com/merchhub/tokensync/internal/api/v1/handlers/websocket"
	v1mware "github.com/merchhub/tokensync/internal/api/v1/middleware"
	"github.com/merchhub/tokensync/internal/apiauth"
	"github.com/merchhub/tokensync/internal/services"
)

func RegisterV1Routes(router *mux.Router, svc *services.Services) {
	cfg := svc.GetConfig()

	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	// Public v1 routes (no auth required)
	v1publicRouter := v1.NewRoute().Subrouter()
	v1publicRouter.HandleFunc("/credential", func(w http.ResponseWriter, r *http.Request) {
		HandleCredential(svc.GetCredentialStore(), w, r)
	}).Methods("GET")
	v1publicRouter.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		HandleStatus(svc.GetReporter(), w, r)
	}).Methods("GET")
	v1publicRouter.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		HandleHealthz(svc.GetCredentialStore(), svc.GetScheduler(), w, r)
	}).Methods("GET")
	v1publicRouter.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		v1ws.HandleStatusFeed(svc.GetConnectionManager(), svc.GetReporter(), w, r)
	}).Methods("GET")

	// Token mint routes (no auth required)
	v1authRouter := v1.PathPrefix("/auth").Subrouter()
	v1authRouter.Handle("/token", v1mware.RateLimit("auth_token", cfg.RateLimit("auth_token"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1auth.HandleToken(svc.GetAuthService(), w, r)
	}))).Methods("POST")

	// Protected v1 routes (require operator auth)
	v1protectedRouter := v1.NewRoute().Subrouter()
	v1protectedRouter.Use(v1mware.RequireAuth(svc.GetAuthService(), []string{apiauth.GrantClientCredentials}))

	// Protected sync routes
	v1syncRouter := v1protectedRouter.PathPrefix("/sync").Subrouter()
	v1syncRouter.Use(v1mware.RequireScope(apiauth.ScopeSyncTrigger))
	v1syncRouter.Handle("", v1mware.RateLimit("manual_sync", cfg.RateLimit("manual_sync"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleSyncTrigger(svc.GetScheduler(), w, r)
	}))).Methods("POST")

	// Protected pool routes
	v1poolRouter := v1protectedRouter.PathPrefix("/pool").Subrouter()
	v1poolRouter.Use(v1mware.RequireScope(apiauth.ScopePoolManage))
	v1poolRouter.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		HandlePoolStats(svc.GetPool(), w, r)
	}).Methods("GET")
	v1poolRouter.HandleFunc("/cleanup", func(w http.ResponseWriter, r *http.Request) {
		HandlePoolCleanup(svc.GetPool(), w, r)
	}).Methods("POST")
}
