package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires every route and wraps them in CORS and access logging.
func NewRouter(cfg Config) http.Handler {
	a := NewAPI(cfg)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.healthCheck).Methods("GET")
	api.HandleFunc("/info", a.serverInfo).Methods("GET")
	api.HandleFunc("/stats", a.globalStats).Methods("GET")

	api.HandleFunc("/stages", a.listStages).Methods("GET")
	api.HandleFunc("/stages/{code}/leaderboard", a.stageLeaderboard).Methods("GET")

	api.HandleFunc("/users", a.registerUser).Methods("POST")
	api.HandleFunc("/users/{user_id}/profile_image", a.setProfileImage).Methods("PATCH")
	api.HandleFunc("/progress/{user_id}", a.userProgress).Methods("GET")

	api.HandleFunc("/run-logs", a.submitRunLog).Methods("POST")

	r.HandleFunc("/chart", a.observe).Methods("GET")
	r.HandleFunc("/ws", a.submitSocket).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods("GET")
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	access := zap.NewStdLog(a.logger.Named("access")).Writer()
	return handlers.CombinedLoggingHandler(access, cors(r))
}
