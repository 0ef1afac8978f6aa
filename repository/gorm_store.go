package repository

import (
	"errors"
	"time"

	"race-results-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the production Store backed by Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Races() RaceRepository     { return &gormRaceRepo{db: s.db} }
func (s *GormStore) Users() UserRepository     { return &gormUserRepo{db: s.db} }
func (s *GormStore) Teams() TeamRepository     { return &gormTeamRepo{db: s.db} }
func (s *GormStore) Results() ResultRepository { return &gormResultRepo{db: s.db} }

func (s *GormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- races ---

type gormRaceRepo struct {
	db *gorm.DB
}

func (r *gormRaceRepo) GetByID(id uint) (*models.Race, error) {
	var race models.Race
	err := r.db.Preload("AgeCategories", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_age ASC")
	}).First(&race, "id = ?", id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &race, nil
}

// --- users ---

type gormUserRepo struct {
	db *gorm.DB
}

func (r *gormUserRepo) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

func (r *gormUserRepo) GetByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

func (r *gormUserRepo) FindByNameTokens(first, last string) (*models.User, error) {
	var user models.User
	err := r.db.
		Where("LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?)", first, last).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

func (r *gormUserRepo) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// --- teams ---

type gormTeamRepo struct {
	db *gorm.DB
}

func (r *gormTeamRepo) GetByID(id uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.First(&team, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &team, nil
}

func (r *gormTeamRepo) Create(team *models.Team) error {
	return r.db.Create(team).Error
}

func (r *gormTeamRepo) CreateMember(member *models.TeamMember) error {
	return r.db.Create(member).Error
}

func (r *gormTeamRepo) MembershipsByUser(userID uint) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&members).Error
	return members, err
}

func (r *gormTeamRepo) MembersByTeam(teamID uint) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := r.db.Preload("User").Where("team_id = ?", teamID).Order("id ASC").Find(&members).Error
	return members, err
}

func (r *gormTeamRepo) DeleteMember(id uint) error {
	return r.db.Delete(&models.TeamMember{}, "id = ?", id).Error
}

func (r *gormTeamRepo) DeleteTeam(id uint) error {
	return r.db.Delete(&models.Team{}, "id = ?", id).Error
}

// --- results ---

type gormResultRepo struct {
	db *gorm.DB
}

func (r *gormResultRepo) GetIndividual(userID, raceID uint) (*models.IndividualResult, error) {
	var result models.IndividualResult
	err := r.db.Where("user_id = ? AND race_id = ?", userID, raceID).First(&result).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &result, nil
}

func (r *gormResultRepo) GetIndividualByID(id uint) (*models.IndividualResult, error) {
	var result models.IndividualResult
	if err := r.db.First(&result, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &result, nil
}

func (r *gormResultRepo) ListIndividualByRace(raceID uint) ([]models.IndividualResult, error) {
	var results []models.IndividualResult
	err := r.db.Preload("User").Where("race_id = ?", raceID).Find(&results).Error
	return results, err
}

func (r *gormResultRepo) ListIndividualByUser(userID uint) ([]models.IndividualResult, error) {
	var results []models.IndividualResult
	err := r.db.Preload("User").Where("user_id = ?", userID).Find(&results).Error
	return results, err
}

func (r *gormResultRepo) ListAllIndividual() ([]models.IndividualResult, error) {
	var results []models.IndividualResult
	err := r.db.Preload("User").Find(&results).Error
	return results, err
}

func (r *gormResultRepo) SaveIndividual(result *models.IndividualResult) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "race_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"temps", "malus", "updated_at"}),
	}).Create(result).Error
}

func (r *gormResultRepo) DeleteIndividual(id uint) (bool, error) {
	res := r.db.Delete(&models.IndividualResult{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormResultRepo) CountIndividualByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.IndividualResult{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *gormResultRepo) ListTeamByRace(raceID uint) ([]models.TeamResult, error) {
	var results []models.TeamResult
	err := r.db.Preload("Team").Where("race_id = ?", raceID).Find(&results).Error
	return results, err
}

func (r *gormResultRepo) ListAllTeam() ([]models.TeamResult, error) {
	var results []models.TeamResult
	err := r.db.Preload("Team").Find(&results).Error
	return results, err
}

func (r *gormResultRepo) SaveTeam(result *models.TeamResult) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "team_id"}, {Name: "race_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"age_category_id", "average_temps", "average_malus", "average_temps_final",
			"member_count", "points", "manual", "updated_at",
		}),
	}).Create(result).Error
}

func (r *gormResultRepo) DeleteTeamResult(id uint) (bool, error) {
	res := r.db.Delete(&models.TeamResult{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormResultRepo) RaceIDsWithResultsSince(since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.IndividualResult{}).
		Where("updated_at >= ?", since).
		Distinct().
		Pluck("race_id", &ids).Error
	return ids, err
}
