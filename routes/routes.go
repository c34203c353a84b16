package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/deckstorm/tcg-arena/handlers"
	"github.com/deckstorm/tcg-arena/middleware"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/services"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Tournament   *handlers.TournamentHandler
	Match        *handlers.MatchHandler
	Registration *handlers.RegistrationHandler
	Ranking      *handlers.RankingHandler
	Bracket      *handlers.BracketHandler
	Player       *handlers.PlayerHandler
	WebSocket    *handlers.WebSocketHandler
}

func InitRoutes(h Handlers, authService services.AuthService) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(authService)
	organizerOnly := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)

	router.Get("/swagger/*", httpSwagger.Handler())

	router.Post("/auth/signup", h.Auth.SignUpHandler)
	router.Post("/auth/login", h.Auth.LoginHandler)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты для просмотра турниров
		r.Get("/", h.Tournament.ListHandler)
		r.Get("/{tournamentID}", h.Tournament.GetByIDHandler)
		r.Get("/{tournamentID}/bracket", h.Bracket.GetBracketHandler)
		r.Get("/{tournamentID}/pairings", h.Bracket.SwissPairingsHandler)
		r.Get("/{tournamentID}/matches", h.Match.ListHandler)
		r.Get("/{tournamentID}/rankings", h.Ranking.ListHandler)
		r.Get("/{tournamentID}/rankings/tie-breakers", h.Ranking.TieBreakersHandler)
		r.Get("/{tournamentID}/registrations", h.Registration.ListHandler)
		r.Get("/{tournamentID}/progress", h.Tournament.ProgressHandler)
		r.Get("/{tournamentID}/status/validate", h.Tournament.ValidateTransitionHandler)
		r.Get("/{tournamentID}/status/transitions", h.Tournament.AvailableTransitionsHandler)
		r.Get("/{tournamentID}/status/history", h.Tournament.StateHistoryHandler)

		// Действия от имени игрока
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/{tournamentID}/registrations", h.Registration.RegisterHandler)
			r.Post("/{tournamentID}/registrations/{playerID}/confirm", h.Registration.ConfirmHandler)
			r.Post("/{tournamentID}/registrations/{playerID}/check-in", h.Registration.CheckInHandler)
			r.Delete("/{tournamentID}/registrations/{playerID}", h.Registration.CancelHandler)
		})

		// Защищенные маршруты только для организаторов
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Post("/", h.Tournament.CreateHandler)
			r.Patch("/{tournamentID}", h.Tournament.UpdateHandler)
			r.Delete("/{tournamentID}", h.Tournament.DeleteHandler)
			r.Post("/{tournamentID}/logo", h.Tournament.UploadLogoHandler)
			r.Post("/{tournamentID}/status", h.Tournament.TransitionHandler)
			r.Post("/{tournamentID}/start", h.Tournament.StartHandler)
			r.Post("/{tournamentID}/advance", h.Tournament.AdvanceHandler)
			r.Post("/{tournamentID}/finish", h.Tournament.FinishHandler)
			r.Post("/{tournamentID}/cancel", h.Tournament.CancelHandler)
			r.Post("/{tournamentID}/matches", h.Match.CreateHandler)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", h.Match.GetByIDHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Post("/{matchID}/start", h.Match.StartHandler)
			r.Post("/{matchID}/score", h.Match.ReportScoreHandler)
			r.Post("/{matchID}/reset", h.Match.ResetHandler)
			r.Delete("/{matchID}", h.Match.DeleteHandler)
		})
	})

	router.Route("/players", func(r chi.Router) {
		r.Get("/{playerID}", h.Player.GetByIDHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/me", h.Player.MeHandler)
			r.Patch("/{playerID}", h.Player.UpdateDisplayNameHandler)
			r.Post("/{playerID}/avatar", h.Player.UploadAvatarHandler)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	return router
}
