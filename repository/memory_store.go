package repository

import (
	"sort"
	"strings"
	"sync"
	"time"

	"race-results-system/models"
)

// MemoryStore is an in-memory Store used by the service tests and for
// running the engine without Postgres. It mimics the gorm store's contract:
// auto-assigned IDs, timestamp columns, upserts on the unique keys, and
// rollback on transaction error (via full-state snapshots — cheap at the
// row counts a single race sees).
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	nextID uint

	races   map[uint]models.Race
	users   map[uint]models.User
	teams   map[uint]models.Team
	members map[uint]models.TeamMember

	individual map[uint]models.IndividualResult
	team       map[uint]models.TeamResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		nextID:     1,
		races:      map[uint]models.Race{},
		users:      map[uint]models.User{},
		teams:      map[uint]models.Team{},
		members:    map[uint]models.TeamMember{},
		individual: map[uint]models.IndividualResult{},
		team:       map[uint]models.TeamResult{},
	}}
}

func (s *MemoryStore) Races() RaceRepository     { return &memRaceRepo{s} }
func (s *MemoryStore) Users() UserRepository     { return &memUserRepo{s} }
func (s *MemoryStore) Teams() TeamRepository     { return &memTeamRepo{s} }
func (s *MemoryStore) Results() ResultRepository { return &memResultRepo{s} }

func (s *MemoryStore) Transaction(fn func(Store) error) error {
	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() *memoryData {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := &memoryData{
		nextID:     s.data.nextID,
		races:      make(map[uint]models.Race, len(s.data.races)),
		users:      make(map[uint]models.User, len(s.data.users)),
		teams:      make(map[uint]models.Team, len(s.data.teams)),
		members:    make(map[uint]models.TeamMember, len(s.data.members)),
		individual: make(map[uint]models.IndividualResult, len(s.data.individual)),
		team:       make(map[uint]models.TeamResult, len(s.data.team)),
	}
	for k, v := range s.data.races {
		copied.races[k] = v
	}
	for k, v := range s.data.users {
		copied.users[k] = v
	}
	for k, v := range s.data.teams {
		copied.teams[k] = v
	}
	for k, v := range s.data.members {
		copied.members[k] = v
	}
	for k, v := range s.data.individual {
		copied.individual[k] = v
	}
	for k, v := range s.data.team {
		copied.team[k] = v
	}
	return copied
}

func (s *MemoryStore) restore(snapshot *memoryData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snapshot
}

func (s *MemoryStore) allocID() uint {
	id := s.data.nextID
	s.data.nextID++
	return id
}

// ensureID assigns the next free ID when none was set, and keeps the
// allocator ahead of explicitly chosen IDs.
func (s *MemoryStore) ensureID(id *uint) {
	if *id == 0 {
		*id = s.allocID()
		return
	}
	if *id >= s.data.nextID {
		s.data.nextID = *id + 1
	}
}

// SeedRace inserts a race for tests and returns its ID.
func (s *MemoryStore) SeedRace(race models.Race) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&race.ID)
	for i := range race.AgeCategories {
		if race.AgeCategories[i].ID == 0 {
			race.AgeCategories[i].ID = s.allocID()
		}
		race.AgeCategories[i].RaceID = race.ID
	}
	s.data.races[race.ID] = race
	return race.ID
}

// --- races ---

type memRaceRepo struct {
	s *MemoryStore
}

func (r *memRaceRepo) GetByID(id uint) (*models.Race, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	race, ok := r.s.data.races[id]
	if !ok {
		return nil, ErrNotFound
	}
	sort.Slice(race.AgeCategories, func(i, j int) bool {
		return race.AgeCategories[i].MinAge < race.AgeCategories[j].MinAge
	})
	return &race, nil
}

// --- users ---

type memUserRepo struct {
	s *MemoryStore
}

func (r *memUserRepo) GetByID(id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range sortedUserIDs(r.s.data) {
		u := r.s.data.users[id]
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) FindByNameTokens(first, last string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range sortedUserIDs(r.s.data) {
		u := r.s.data.users[id]
		if strings.EqualFold(u.FirstName, first) && strings.EqualFold(u.LastName, last) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) Create(user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ensureID(&user.ID)
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.data.users[user.ID] = *user
	return nil
}

func sortedUserIDs(d *memoryData) []uint {
	ids := make([]uint, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// --- teams ---

type memTeamRepo struct {
	s *MemoryStore
}

func (r *memTeamRepo) GetByID(id uint) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	team, ok := r.s.data.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &team, nil
}

func (r *memTeamRepo) Create(team *models.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ensureID(&team.ID)
	now := time.Now()
	team.CreatedAt = now
	team.UpdatedAt = now
	r.s.data.teams[team.ID] = *team
	return nil
}

func (r *memTeamRepo) CreateMember(member *models.TeamMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ensureID(&member.ID)
	member.CreatedAt = time.Now()
	r.s.data.members[member.ID] = *member
	return nil
}

func (r *memTeamRepo) MembershipsByUser(userID uint) ([]models.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.TeamMember
	for _, m := range r.s.data.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTeamRepo) MembersByTeam(teamID uint) ([]models.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.TeamMember
	for _, m := range r.s.data.members {
		if m.TeamID == teamID {
			if u, ok := r.s.data.users[m.UserID]; ok {
				m.User = u
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTeamRepo) DeleteMember(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.data.members, id)
	return nil
}

func (r *memTeamRepo) DeleteTeam(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.data.teams, id)
	return nil
}

// --- results ---

type memResultRepo struct {
	s *MemoryStore
}

func (r *memResultRepo) GetIndividual(userID, raceID uint) (*models.IndividualResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.data.individual {
		if res.UserID == userID && res.RaceID == raceID {
			return &res, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memResultRepo) GetIndividualByID(id uint) (*models.IndividualResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.data.individual[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

func (r *memResultRepo) listIndividual(filter func(models.IndividualResult) bool) []models.IndividualResult {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.IndividualResult
	for _, res := range r.s.data.individual {
		if filter(res) {
			if u, ok := r.s.data.users[res.UserID]; ok {
				res.User = u
			}
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memResultRepo) ListIndividualByRace(raceID uint) ([]models.IndividualResult, error) {
	return r.listIndividual(func(res models.IndividualResult) bool { return res.RaceID == raceID }), nil
}

func (r *memResultRepo) ListIndividualByUser(userID uint) ([]models.IndividualResult, error) {
	return r.listIndividual(func(res models.IndividualResult) bool { return res.UserID == userID }), nil
}

func (r *memResultRepo) ListAllIndividual() ([]models.IndividualResult, error) {
	return r.listIndividual(func(models.IndividualResult) bool { return true }), nil
}

func (r *memResultRepo) SaveIndividual(result *models.IndividualResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for id, existing := range r.s.data.individual {
		if existing.UserID == result.UserID && existing.RaceID == result.RaceID {
			result.ID = id
			result.CreatedAt = existing.CreatedAt
			result.UpdatedAt = now
			result.User = models.User{}
			r.s.data.individual[id] = *result
			return nil
		}
	}
	r.s.ensureID(&result.ID)
	result.CreatedAt = now
	result.UpdatedAt = now
	result.User = models.User{}
	r.s.data.individual[result.ID] = *result
	return nil
}

func (r *memResultRepo) DeleteIndividual(id uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.individual[id]; !ok {
		return false, nil
	}
	delete(r.s.data.individual, id)
	return true, nil
}

func (r *memResultRepo) CountIndividualByUser(userID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, res := range r.s.data.individual {
		if res.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memResultRepo) listTeam(filter func(models.TeamResult) bool) []models.TeamResult {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.TeamResult
	for _, res := range r.s.data.team {
		if filter(res) {
			if t, ok := r.s.data.teams[res.TeamID]; ok {
				res.Team = t
			}
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memResultRepo) ListTeamByRace(raceID uint) ([]models.TeamResult, error) {
	return r.listTeam(func(res models.TeamResult) bool { return res.RaceID == raceID }), nil
}

func (r *memResultRepo) ListAllTeam() ([]models.TeamResult, error) {
	return r.listTeam(func(models.TeamResult) bool { return true }), nil
}

func (r *memResultRepo) SaveTeam(result *models.TeamResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for id, existing := range r.s.data.team {
		if existing.TeamID == result.TeamID && existing.RaceID == result.RaceID {
			result.ID = id
			result.CreatedAt = existing.CreatedAt
			result.UpdatedAt = now
			result.Team = models.Team{}
			r.s.data.team[id] = *result
			return nil
		}
	}
	r.s.ensureID(&result.ID)
	result.CreatedAt = now
	result.UpdatedAt = now
	result.Team = models.Team{}
	r.s.data.team[result.ID] = *result
	return nil
}

func (r *memResultRepo) DeleteTeamResult(id uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.team[id]; !ok {
		return false, nil
	}
	delete(r.s.data.team, id)
	return true, nil
}

func (r *memResultRepo) RaceIDsWithResultsSince(since time.Time) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[uint]bool{}
	var ids []uint
	for _, res := range r.s.data.individual {
		if !res.UpdatedAt.Before(since) && !seen[res.RaceID] {
			seen[res.RaceID] = true
			ids = append(ids, res.RaceID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
