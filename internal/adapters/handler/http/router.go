package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func NewHandler(
	voteHandler *VoteHandler,
	tallyHandler *TallyHandler,
	streamHandler *StreamHandler,
	authenticator *Authenticator,
	metricsHandler http.Handler,
	allowedOrigins []string,
	log *zap.Logger,
) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", ClientSignatureHeader},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if authenticator != nil {
			r.Use(authenticator.Middleware)
		}

		r.Route("/statements/{id}", func(r chi.Router) {
			r.Post("/votes", voteHandler.VoteOnStatement)
			r.Get("/tally", tallyHandler.GetTally)
			r.Get("/series", tallyHandler.GetSeries)
			r.Get("/stream", streamHandler.Stream)
		})

		r.Delete("/votes/anonymous", voteHandler.EraseAnonymous)
	})

	return r
}
