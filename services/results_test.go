package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"race-results-system/models"
	"race-results-system/repository"
)

func TestUpsertRecalculatesTeamAggregates(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "Alice", "Morel", true)
	b := f.createUser(t, "Bob", "Lefevre", true)
	team := f.createTeam(t, "Les Chamois", a.ID, b.ID)

	f.addResult(t, a.ID, 3600, 60)
	f.addResult(t, b.ID, 3000, 0)

	row := f.teamRow(t, team.ID)
	require.NotNil(t, row)
	assert.InDelta(t, 3300, row.AverageTemps, 1e-9)
	assert.InDelta(t, 30, row.AverageMalus, 1e-9)
	assert.InDelta(t, 3330, row.AverageTempsFinal, 1e-9)
	assert.Equal(t, 2, row.MemberCount)
	assert.False(t, row.Manual)
}

func TestAggregatesStayConsistentAfterEveryChange(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "Alice", "Morel", true)
	b := f.createUser(t, "Bob", "Lefevre", true)
	team := f.createTeam(t, "Les Chamois", a.ID, b.ID)

	f.addResult(t, a.ID, 3600, 60)
	f.addResult(t, b.ID, 3000, 0)
	f.addResult(t, a.ID, 3500, 0) // upsert, not a second row

	row := f.teamRow(t, team.ID)
	require.NotNil(t, row)
	assert.Equal(t, 2, row.MemberCount)
	assert.InDelta(t, row.AverageTemps+row.AverageMalus, row.AverageTempsFinal, 1e-9)
	assert.InDelta(t, 3250, row.AverageTemps, 1e-9)

	// deleting one contributor shrinks the aggregate to the other
	result, err := f.store.Results().GetIndividual(a.ID, f.raceID)
	require.NoError(t, err)
	err = f.store.Transaction(func(tx repository.Store) error {
		deleted, err := f.results.DeleteIndividualResult(tx, result.ID)
		require.True(t, deleted)
		return err
	})
	require.NoError(t, err)

	row = f.teamRow(t, team.ID)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.MemberCount)
	assert.InDelta(t, 3000, row.AverageTemps, 1e-9)

	// deleting the last contributor drops the derived row entirely
	result, err = f.store.Results().GetIndividual(b.ID, f.raceID)
	require.NoError(t, err)
	err = f.store.Transaction(func(tx repository.Store) error {
		_, err := f.results.DeleteIndividualResult(tx, result.ID)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, f.teamRow(t, team.ID))
}

func TestDeleteMissingResultReturnsFalse(t *testing.T) {
	f := newFixture(t)
	deleted, err := f.results.DeleteIndividualResult(f.store, 424242)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpsertRejectsNegativeTimes(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "Alice", "Morel", true)
	_, err := f.results.UpsertIndividualResult(f.store, a.ID, f.raceID, -1, 0)
	assert.Error(t, err)
	_, err = f.results.UpsertIndividualResult(f.store, a.ID, f.raceID, 10, -1)
	assert.Error(t, err)
}

func TestManualRowsSurviveRecalculation(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "Alice", "Morel", true)
	f.createTeam(t, "Les Chamois", a.ID)
	manualTeam := f.createTeam(t, "Hors Breakdown")

	require.NoError(t, f.store.Results().SaveTeam(&models.TeamResult{
		TeamID:            manualTeam.ID,
		RaceID:            f.raceID,
		AverageTemps:      4000,
		AverageTempsFinal: 4000,
		MemberCount:       3,
		Manual:            true,
	}))

	f.addResult(t, a.ID, 3600, 0)

	row := f.teamRow(t, manualTeam.ID)
	require.NotNil(t, row)
	assert.True(t, row.Manual)
	assert.InDelta(t, 4000, row.AverageTempsFinal, 1e-9)
}

func TestRecalculationAssignsAgeCategory(t *testing.T) {
	store := repository.NewMemoryStore()
	resolver := NewResolverService(store)
	results := NewResultsService(store, resolver)
	raceID := store.SeedRace(models.Race{
		RaidID:        1,
		Name:          "Raid Jeunes",
		Date:          time.Date(2026, 6, 6, 9, 0, 0, 0, time.UTC),
		IsCompetitive: true,
		AgeCategories: []models.AgeCategory{
			{Name: "Junior", MinAge: 0, MaxAge: 17},
			{Name: "Senior", MinAge: 18, MaxAge: 39},
			{Name: "Veteran", MinAge: 40, MaxAge: 99},
		},
	})

	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	user := &models.User{FirstName: "Alice", LastName: "Morel", Email: "alice@club.test", BirthDate: &birth}
	require.NoError(t, store.Users().Create(user))
	team := &models.Team{Name: "Les Chamois"}
	require.NoError(t, store.Teams().Create(team))
	require.NoError(t, store.Teams().CreateMember(&models.TeamMember{TeamID: team.ID, UserID: user.ID}))

	_, err := results.UpsertIndividualResult(store, user.ID, raceID, 3600, 0)
	require.NoError(t, err)

	rows, err := store.Results().ListTeamByRace(raceID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].AgeCategoryID)

	race, err := store.Races().GetByID(raceID)
	require.NoError(t, err)
	var senior uint
	for _, cat := range race.AgeCategories {
		if cat.Name == "Senior" {
			senior = cat.ID
		}
	}
	assert.Equal(t, senior, *rows[0].AgeCategoryID)
}

func TestRemoveOrphanedSynthetic(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.ResolveByName(f.store, "Zinedine Zidane")
	require.NoError(t, err)
	userID, teamID := res.User.ID, res.Team.ID

	// no result on the books, so the synthetic scaffolding goes away
	require.NoError(t, f.results.RemoveOrphanedSynthetic(f.store, userID))

	memberships, err := f.store.Teams().MembershipsByUser(userID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
	_, err = f.store.Teams().GetByID(teamID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// the user row itself always survives
	user, err := f.store.Users().GetByID(userID)
	require.NoError(t, err)
	assert.True(t, user.Imported)
}

func TestRemoveOrphanedSyntheticSkipsUsersWithResults(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.ResolveByName(f.store, "Zinedine Zidane")
	require.NoError(t, err)
	f.addResult(t, res.User.ID, 3600, 0)

	require.NoError(t, f.results.RemoveOrphanedSynthetic(f.store, res.User.ID))
	memberships, err := f.store.Teams().MembershipsByUser(res.User.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 1)
}

func TestRemoveOrphanedSyntheticSkipsOrganicUsers(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "Alice", "Morel", true)
	team := f.createTeam(t, "Les Chamois", user.ID)

	require.NoError(t, f.results.RemoveOrphanedSynthetic(f.store, user.ID))
	members, err := f.store.Teams().MembersByTeam(team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
