package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openscrim/tournament-engine/handlers"
	"github.com/openscrim/tournament-engine/middleware"
)

// SetupRoutes mounts the full HTTP surface: public reads, team match
// actions, the admin group behind the bearer-token middleware, the
// websocket event stream and the health probe.
func SetupRoutes(
	router *chi.Mux,
	tournamentHandler *handlers.TournamentHandler,
	matchHandler *handlers.MatchHandler,
	authHandler *handlers.AuthHandler,
	wsHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
	adminSecret string,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", healthHandler.Healthz)
	router.Post("/auth/token", authHandler.Token)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}", tournamentHandler.Get)
		r.Get("/{tournamentID}/bracket", tournamentHandler.Bracket)
		r.Get("/{tournamentID}/standings", tournamentHandler.Standings)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(adminSecret))

			r.Post("/", tournamentHandler.Create)
			r.Post("/{tournamentID}/registration/open", tournamentHandler.OpenRegistration)
			r.Post("/{tournamentID}/registration/close", tournamentHandler.CloseRegistration)
			r.Post("/{tournamentID}/cancel", tournamentHandler.Cancel)
			r.Post("/{tournamentID}/teams", tournamentHandler.RegisterTeam)
			r.Delete("/{tournamentID}/teams/{teamID}", tournamentHandler.UnregisterTeam)
			r.Put("/{tournamentID}/seeding", tournamentHandler.SetSeeding)
			r.Post("/{tournamentID}/start", tournamentHandler.Start)
			r.Post("/{tournamentID}/playoff", tournamentHandler.GeneratePlayoff)
			r.Post("/{tournamentID}/rounds/revert", matchHandler.RevertRound)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.Get)

		// Team protocol actions; the acting team asserts itself in the
		// body.
		r.Post("/{matchID}/ready", matchHandler.Ready)
		r.Post("/{matchID}/ban", matchHandler.Ban)
		r.Post("/{matchID}/pick", matchHandler.Pick)
		r.Post("/{matchID}/side", matchHandler.Side)
		r.Post("/{matchID}/result", matchHandler.SubmitResult)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(adminSecret))

			r.Post("/{matchID}/dispute/resolve", matchHandler.ResolveDispute)
			r.Post("/{matchID}/force-complete", matchHandler.ForceComplete)
			r.Post("/{matchID}/revert", matchHandler.Revert)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", wsHandler.ServeWs)
}
