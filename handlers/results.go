package handlers

import (
	"race-results-system/middleware"
	"race-results-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupResultRoutes(app *fiber.App, importer *services.ImporterService, results *services.ResultsService, leaderboard *services.LeaderboardService) {
	// Public read routes — gateway auth only, no user context
	app.Get("/public/leaderboard", leaderboard.GetPublicLeaderboard)

	// Authenticated routes — require user context from the Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Leaderboard reads (management views)
	secured.Get("/leaderboard", leaderboard.GetIndividualLeaderboard)
	secured.Get("/leaderboard/teams", leaderboard.GetTeamLeaderboard)
	secured.Get("/users/:user_id/results", leaderboard.GetUserResults)
	secured.Get("/races/:id/results/export", leaderboard.ExportResults)

	// CSV import (reconciliation entry points)
	secured.Post("/races/:id/results/import", importer.ImportResults)
	secured.Post("/races/:id/results/import/teams", importer.ImportTeamResults)

	// Per-row edits
	secured.Post("/races/:id/results", results.AddResult)
	secured.Delete("/results/:id", results.DeleteResult)
}
