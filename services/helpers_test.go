package services

import (
	"fmt"
	"testing"
	"time"

	"race-results-system/models"
	"race-results-system/repository"

	"github.com/stretchr/testify/require"
)

// fixture wires the full service stack over an in-memory store, with one
// seeded race to hang results on.
type fixture struct {
	store       *repository.MemoryStore
	resolver    *ResolverService
	results     *ResultsService
	importer    *ImporterService
	leaderboard *LeaderboardService
	raceID      uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	resolver := NewResolverService(store)
	results := NewResultsService(store, resolver)
	return &fixture{
		store:       store,
		resolver:    resolver,
		results:     results,
		importer:    NewImporterService(store, resolver, results),
		leaderboard: NewLeaderboardService(store),
		raceID: store.SeedRace(models.Race{
			RaidID: 1,
			Name:   "Raid des Volcans",
			Date:   time.Date(2026, 6, 6, 9, 0, 0, 0, time.UTC),
		}),
	}
}

func (f *fixture) createUser(t *testing.T, first, last string, public bool) *models.User {
	t.Helper()
	user := &models.User{
		FirstName: first,
		LastName:  last,
		Email:     first + "." + last + "@club.test",
		IsPublic:  public,
	}
	require.NoError(t, f.store.Users().Create(user))
	return user
}

// createTeam builds an organic team with one membership per user.
func (f *fixture) createTeam(t *testing.T, name string, userIDs ...uint) *models.Team {
	t.Helper()
	team := &models.Team{Name: name}
	require.NoError(t, f.store.Teams().Create(team))
	for _, id := range userIDs {
		regID := id
		require.NoError(t, f.store.Teams().CreateMember(&models.TeamMember{
			TeamID:         team.ID,
			UserID:         id,
			RegistrationID: &regID,
		}))
	}
	return team
}

func (f *fixture) addResult(t *testing.T, userID uint, temps, malus float64) {
	t.Helper()
	err := f.store.Transaction(func(tx repository.Store) error {
		_, err := f.results.UpsertIndividualResult(tx, userID, f.raceID, temps, malus)
		return err
	})
	require.NoError(t, err)
}

// rowForTeam renders one semicolon CSV line for a team-direct upload.
func rowForTeam(teamID uint, rest string) string {
	return fmt.Sprintf("%d;%s\n", teamID, rest)
}

func (f *fixture) teamRow(t *testing.T, teamID uint) *models.TeamResult {
	t.Helper()
	rows, err := f.store.Results().ListTeamByRace(f.raceID)
	require.NoError(t, err)
	for i := range rows {
		if rows[i].TeamID == teamID {
			return &rows[i]
		}
	}
	return nil
}
