package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"race-results-system/models"
)

func TestImportNameBasedCsv(t *testing.T) {
	f := newFixture(t)
	jean := f.createUser(t, "Jean", "Dupont", true)

	csv := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Jean Dupont,01:30:45.75,00:00.50,01:30:46.25\n"
	summary, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Removed)
	assert.Empty(t, summary.Errors)
	assert.NotEmpty(t, summary.ImportID)

	result, err := f.store.Results().GetIndividual(jean.ID, f.raceID)
	require.NoError(t, err)
	assert.InDelta(t, 5445.75, result.Temps, 1e-9)
	assert.InDelta(t, 0.5, result.Malus, 1e-9)
	assert.InDelta(t, 5446.25, result.TempsFinal(), 1e-9)
}

func TestImportCreatesImportedParticipants(t *testing.T) {
	f := newFixture(t)

	csv := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Zinedine Zidane,01:00:00,,01:00:00\n" +
		"2,Raymond Poulidor,01:05:00,00:30,01:05:30\n"
	summary, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 2, summary.Created)

	results, err := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.User.Imported)
	}

	// each unmatched name got a solo team with a derived aggregate
	teamRows, err := f.store.Results().ListTeamByRace(f.raceID)
	require.NoError(t, err)
	assert.Len(t, teamRows, 2)
	for _, tr := range teamRows {
		assert.Equal(t, 1, tr.MemberCount)
		assert.InDelta(t, tr.AverageTemps+tr.AverageMalus, tr.AverageTempsFinal, 1e-9)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	f := newFixture(t)

	csv := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Zinedine Zidane,01:00:00,,01:00:00\n" +
		"2,Raymond Poulidor,01:05:00,00:30,01:05:30\n"
	_, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)

	summary, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Removed)

	results, err := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestImportConvergesToLatestFile(t *testing.T) {
	f := newFixture(t)

	first := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Zinedine Zidane,01:00:00,,01:00:00\n" +
		"2,Raymond Poulidor,01:05:00,,01:05:00\n"
	_, err := f.importer.ImportCsv([]byte(first), f.raceID)
	require.NoError(t, err)

	second := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Zinedine Zidane,00:58:00,,00:58:00\n" +
		"2,Eddy Merckx,01:02:00,,01:02:00\n"
	summary, err := f.importer.ImportCsv([]byte(second), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Removed)

	results, err := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	names := map[string]float64{}
	for _, r := range results {
		names[r.User.FullName()] = r.Temps
	}
	assert.InDelta(t, 3480, names["Zinedine Zidane"], 1e-9)
	assert.InDelta(t, 3720, names["Eddy Merckx"], 1e-9)
	assert.NotContains(t, names, "Raymond Poulidor")
}

func TestImportHeaderOnlyClearsRace(t *testing.T) {
	f := newFixture(t)

	csv := "Rang,Nom,Temps,Malus,Temps Final\n" +
		"1,Zinedine Zidane,01:00:00,,01:00:00\n"
	first, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	summary, err := f.importer.ImportCsv([]byte("Rang,Nom,Temps,Malus,Temps Final\n"), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 1, summary.Removed)

	results, err := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, err)
	assert.Empty(t, results)
	teamRows, err := f.store.Results().ListTeamByRace(f.raceID)
	require.NoError(t, err)
	assert.Empty(t, teamRows)

	// the synthetic scaffolding is gone but the user survives for re-imports
	user, err := f.store.Users().FindByNameTokens("Zinedine", "Zidane")
	require.NoError(t, err)
	memberships, err := f.store.Teams().MembershipsByUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}

func TestImportDirectCsv(t *testing.T) {
	f := newFixture(t)
	alice := &models.User{ID: 42, FirstName: "Alice", LastName: "Morel", Email: "alice@club.test"}
	require.NoError(t, f.store.Users().Create(alice))

	csv := "user_id;temps;malus\n" +
		"42;3600.5;60\n" +
		"9999;3700;0\n"
	summary, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "row 3")
	assert.Contains(t, summary.Errors[0], "unknown user id 9999")

	result, err := f.store.Results().GetIndividual(42, f.raceID)
	require.NoError(t, err)
	assert.InDelta(t, 3600.5, result.Temps, 1e-9)
	assert.InDelta(t, 60, result.Malus, 1e-9)
}

func TestImportRowErrorDoesNotAbortFile(t *testing.T) {
	f := newFixture(t)
	alice := &models.User{ID: 7, FirstName: "Alice", LastName: "Morel", Email: "alice@club.test"}
	require.NoError(t, f.store.Users().Create(alice))

	csv := "user_id;temps;malus\n" +
		"not-a-number;3600;0\n" +
		"7;3600;0\n"
	summary, err := f.importer.ImportCsv([]byte(csv), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Len(t, summary.Errors, 1)
}

func TestImportWindows1252File(t *testing.T) {
	f := newFixture(t)
	existing := f.createUser(t, "Jerome", "Martin", true)

	// "Jérôme Martin" in the legacy codepage
	csv := []byte("Rang,Nom,Temps,Malus,Temps Final\n1,J\xe9r\xf4me Martin,01:00:00,,01:00:00\n")
	summary, err := f.importer.ImportCsv(csv, f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Created)

	_, err = f.store.Results().GetIndividual(existing.ID, f.raceID)
	assert.NoError(t, err)
}

func TestImportUnknownRace(t *testing.T) {
	f := newFixture(t)
	_, err := f.importer.ImportCsv([]byte("user_id;temps;malus\n"), 9999)
	assert.ErrorIs(t, err, ErrRaceNotFound)
}

func TestImportRejectsBadHeader(t *testing.T) {
	f := newFixture(t)

	_, err := f.importer.ImportCsv([]byte("foo;bar;baz\n1;2;3\n"), f.raceID)
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = f.importer.ImportCsv([]byte(""), f.raceID)
	assert.ErrorIs(t, err, ErrBadHeader)

	// a team file on the individual endpoint is a shape mismatch
	_, err = f.importer.ImportCsv([]byte("equ_id;temps;malus;member_count\n"), f.raceID)
	assert.ErrorIs(t, err, ErrBadHeader)

	// and nothing was written
	results, err := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTeamImportUnknownRaceWritesNothing(t *testing.T) {
	f := newFixture(t)
	alice := &models.User{ID: 5, FirstName: "Alice", LastName: "Morel", Email: "alice@club.test"}
	require.NoError(t, f.store.Users().Create(alice))

	before, err := f.importer.ImportCsv([]byte("user_id;temps;malus\n5;3600;0\n"), f.raceID)
	require.NoError(t, err)
	require.Equal(t, 1, before.Success)

	// unknown race id inside the team endpoint does not touch the race
	_, err = f.importer.ImportTeamCsv([]byte("equ_id;temps;malus;member_count\n1;3600;0;2\n"), 9999)
	assert.ErrorIs(t, err, ErrRaceNotFound)
	results, listErr := f.store.Results().ListIndividualByRace(f.raceID)
	require.NoError(t, listErr)
	assert.Len(t, results, 1)
}

func TestImportTeamCsv(t *testing.T) {
	f := newFixture(t)
	teamA := f.createTeam(t, "Les Chamois")
	teamB := f.createTeam(t, "Les Marmottes")

	csv := "equ_id;temps;malus;member_count;points\n" +
		rowForTeam(teamA.ID, "3600;60;2;15.5") +
		rowForTeam(teamB.ID, "3500;0;3;") +
		"999;1;1;1;\n"

	summary, err := f.importer.ImportTeamCsv([]byte(csv), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "unknown team id 999")

	rowA := f.teamRow(t, teamA.ID)
	require.NotNil(t, rowA)
	assert.True(t, rowA.Manual)
	assert.InDelta(t, 3660, rowA.AverageTempsFinal, 1e-9)
	assert.Equal(t, 2, rowA.MemberCount)
	require.NotNil(t, rowA.Points)
	assert.InDelta(t, 15.5, *rowA.Points, 1e-9)

	rowB := f.teamRow(t, teamB.ID)
	require.NotNil(t, rowB)
	assert.Nil(t, rowB.Points)
}

func TestTeamImportRemovesStaleManualRowsOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "Alice", "Morel", true)
	derivedTeam := f.createTeam(t, "Les Chamois", alice.ID)
	manualTeam := f.createTeam(t, "Les Marmottes")

	// a derived aggregate from the individual path
	f.addResult(t, alice.ID, 3600, 0)

	csv := "equ_id;temps;malus;member_count\n" + rowForTeam(manualTeam.ID, "3500;0;3")
	_, err := f.importer.ImportTeamCsv([]byte(csv), f.raceID)
	require.NoError(t, err)

	// re-import an empty team file: the manual row goes, the derived stays
	summary, err := f.importer.ImportTeamCsv([]byte("equ_id;temps;malus;member_count\n"), f.raceID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)
	assert.Nil(t, f.teamRow(t, manualTeam.ID))
	assert.NotNil(t, f.teamRow(t, derivedTeam.ID))
}
