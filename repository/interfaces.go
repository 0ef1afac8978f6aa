package repository

import (
	"errors"
	"time"

	"race-results-system/models"
)

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("record not found")

// Store bundles the repositories the results core writes through. The import
// engine only ever talks to this interface, so the whole reconciliation can
// run against Postgres in production and against MemoryStore in tests.
type Store interface {
	Races() RaceRepository
	Users() UserRepository
	Teams() TeamRepository
	Results() ResultRepository

	// Transaction runs fn against a store bound to a single transaction.
	// If fn returns an error every write made inside it is rolled back.
	Transaction(fn func(Store) error) error
}

type RaceRepository interface {
	// GetByID returns the race with its age categories attached.
	GetByID(id uint) (*models.Race, error)
}

type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	// FindByNameTokens does a case-insensitive exact match on
	// (first_name, last_name). Returns ErrNotFound when nothing matches.
	FindByNameTokens(first, last string) (*models.User, error)
	Create(user *models.User) error
}

type TeamRepository interface {
	GetByID(id uint) (*models.Team, error)
	Create(team *models.Team) error
	CreateMember(member *models.TeamMember) error
	// MembershipsByUser returns every team membership of a user, oldest first.
	MembershipsByUser(userID uint) ([]models.TeamMember, error)
	// MembersByTeam returns a team's memberships with User preloaded.
	MembersByTeam(teamID uint) ([]models.TeamMember, error)
	DeleteMember(id uint) error
	DeleteTeam(id uint) error
}

type ResultRepository interface {
	GetIndividual(userID, raceID uint) (*models.IndividualResult, error)
	GetIndividualByID(id uint) (*models.IndividualResult, error)
	// ListIndividualByRace returns results with User preloaded, no ordering
	// guarantee (ranking is the query service's job).
	ListIndividualByRace(raceID uint) ([]models.IndividualResult, error)
	ListIndividualByUser(userID uint) ([]models.IndividualResult, error)
	ListAllIndividual() ([]models.IndividualResult, error)
	// SaveIndividual upserts on the (user_id, race_id) unique key.
	SaveIndividual(result *models.IndividualResult) error
	// DeleteIndividual reports false when the row did not exist.
	DeleteIndividual(id uint) (bool, error)
	CountIndividualByUser(userID uint) (int64, error)

	ListTeamByRace(raceID uint) ([]models.TeamResult, error)
	ListAllTeam() ([]models.TeamResult, error)
	// SaveTeam upserts on the (team_id, race_id) unique key.
	SaveTeam(result *models.TeamResult) error
	DeleteTeamResult(id uint) (bool, error)

	// RaceIDsWithResultsSince lists races whose individual results changed
	// after the given instant. Used by the consistency sweeper.
	RaceIDsWithResultsSince(since time.Time) ([]uint, error)
}
