package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"race-results-system/models"
	"race-results-system/repository"
	"race-results-system/utils"

	"github.com/gofiber/fiber/v2"
)

// ResultsService owns the write side of the two result tables and keeps the
// team aggregates consistent with every per-individual change.
type ResultsService struct {
	Store    repository.Store
	Resolver *ResolverService
}

func NewResultsService(store repository.Store, resolver *ResolverService) *ResultsService {
	return &ResultsService{Store: store, Resolver: resolver}
}

// UpsertIndividualResult inserts or updates the (user, race) row and
// recomputes the race's team aggregates. Callers never recompute themselves.
func (s *ResultsService) UpsertIndividualResult(st repository.Store, userID, raceID uint, temps, malus float64) (*models.IndividualResult, error) {
	if temps < 0 || malus < 0 {
		return nil, fmt.Errorf("temps and malus must be >= 0")
	}
	result := &models.IndividualResult{
		UserID: userID,
		RaceID: raceID,
		Temps:  temps,
		Malus:  malus,
	}
	if err := st.Results().SaveIndividual(result); err != nil {
		return nil, fmt.Errorf("failed to save result for user %d: %w", userID, err)
	}
	if err := s.RecalculateTeamAverages(st, raceID); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteIndividualResult removes one row and recomputes the race's team
// aggregates. Returns false when the row did not exist.
func (s *ResultsService) DeleteIndividualResult(st repository.Store, id uint) (bool, error) {
	result, err := st.Results().GetIndividualByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	deleted, err := st.Results().DeleteIndividual(id)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := s.RecalculateTeamAverages(st, result.RaceID); err != nil {
		return true, err
	}
	return true, nil
}

// RecalculateTeamAverages rebuilds every derived TeamResult row of a race
// from the individual rows: arithmetic means over the contributing members,
// member_count = contributing rows (not roster size). Teams left with zero
// contributing rows lose their stale aggregate. Manual rows (team-direct
// import, no individual breakdown) are left untouched.
func (s *ResultsService) RecalculateTeamAverages(st repository.Store, raceID uint) error {
	race, err := st.Races().GetByID(raceID)
	if err != nil {
		return fmt.Errorf("failed to load race %d: %w", raceID, err)
	}

	results, err := st.Results().ListIndividualByRace(raceID)
	if err != nil {
		return err
	}

	type aggregate struct {
		sumTemps float64
		sumMalus float64
		count    int
		users    []models.User
	}
	byTeam := map[uint]*aggregate{}
	for _, r := range results {
		memberships, err := st.Teams().MembershipsByUser(r.UserID)
		if err != nil {
			return err
		}
		if len(memberships) == 0 {
			continue
		}
		teamID := memberships[0].TeamID
		agg := byTeam[teamID]
		if agg == nil {
			agg = &aggregate{}
			byTeam[teamID] = agg
		}
		agg.sumTemps += r.Temps
		agg.sumMalus += r.Malus
		agg.count++
		agg.users = append(agg.users, r.User)
	}

	existing, err := st.Results().ListTeamByRace(raceID)
	if err != nil {
		return err
	}
	existingByTeam := map[uint]models.TeamResult{}
	for _, tr := range existing {
		existingByTeam[tr.TeamID] = tr
	}

	for teamID, agg := range byTeam {
		n := float64(agg.count)
		avgTemps := agg.sumTemps / n
		avgMalus := agg.sumMalus / n
		row := &models.TeamResult{
			TeamID:            teamID,
			RaceID:            raceID,
			AgeCategoryID:     categoryForUsers(race, agg.users),
			AverageTemps:      avgTemps,
			AverageMalus:      avgMalus,
			AverageTempsFinal: avgTemps + avgMalus,
			MemberCount:       agg.count,
			Manual:            false,
		}
		// points are externally supplied; carry the previous value through
		if prev, ok := existingByTeam[teamID]; ok {
			row.Points = prev.Points
		}
		if err := st.Results().SaveTeam(row); err != nil {
			return fmt.Errorf("failed to save team aggregate for team %d: %w", teamID, err)
		}
	}

	for teamID, tr := range existingByTeam {
		if _, contributes := byTeam[teamID]; contributes || tr.Manual {
			continue
		}
		if _, err := st.Results().DeleteTeamResult(tr.ID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOrphanedSynthetic deletes the imported memberships (and empty
// imported teams) of a participant who no longer holds any result. The user
// row itself always survives so a later re-import of the same name matches
// instead of minting a duplicate.
func (s *ResultsService) RemoveOrphanedSynthetic(st repository.Store, userID uint) error {
	user, err := st.Users().GetByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.Imported {
		return nil
	}
	count, err := st.Results().CountIndividualByUser(userID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	memberships, err := st.Teams().MembershipsByUser(userID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if !m.Imported {
			continue
		}
		if err := st.Teams().DeleteMember(m.ID); err != nil {
			return err
		}
		remaining, err := st.Teams().MembersByTeam(m.TeamID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			continue
		}
		team, err := st.Teams().GetByID(m.TeamID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}
		if team.Imported {
			if err := st.Teams().DeleteTeam(team.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// categoryForUsers assigns the age bracket containing the mean age of the
// contributing members with a known birth date. Nil when the race has no
// categories or no member has one.
func categoryForUsers(race *models.Race, users []models.User) *uint {
	if len(race.AgeCategories) == 0 {
		return nil
	}
	ref := race.Date
	if ref.IsZero() {
		ref = time.Now()
	}
	var sum, n int
	for _, u := range users {
		if u.BirthDate == nil {
			continue
		}
		sum += int(ref.Sub(*u.BirthDate).Hours() / 24 / 365.25)
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / n
	for i := range race.AgeCategories {
		if race.AgeCategories[i].Contains(avg) {
			id := race.AgeCategories[i].ID
			return &id
		}
	}
	return nil
}

// --- HTTP endpoints (per-row edit path) ---

// AddResult handles POST /races/:id/results — the manual single-row entry
// form. Time cells accept any encoding the importer does.
func (s *ResultsService) AddResult(c *fiber.Ctx) error {
	raceID, err := c.ParamsInt("id")
	if err != nil || raceID <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid race id"})
	}
	type Req struct {
		UserID uint   `json:"user_id"`
		Temps  string `json:"temps"`
		Malus  string `json:"malus"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.UserID == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	if _, err := s.Store.Races().GetByID(uint(raceID)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "race not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var result *models.IndividualResult
	err = s.Store.Transaction(func(tx repository.Store) error {
		if _, err := s.Resolver.ResolveByID(tx, req.UserID); err != nil {
			return err
		}
		result, err = s.UpsertIndividualResult(tx, req.UserID, uint(raceID), utils.ParseTime(req.Temps), utils.ParseTime(req.Malus))
		return err
	})
	if err != nil {
		log.Printf("ERROR adding result for race %d: %v", raceID, err)
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(result)
}

// DeleteResult handles DELETE /results/:id.
func (s *ResultsService) DeleteResult(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid result id"})
	}
	var deleted bool
	err = s.Store.Transaction(func(tx repository.Store) error {
		deleted, err = s.DeleteIndividualResult(tx, uint(id))
		return err
	})
	if err != nil {
		log.Printf("ERROR deleting result %d: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	if !deleted {
		return c.Status(404).JSON(fiber.Map{"error": "result not found"})
	}
	return c.JSON(fiber.Map{"message": "result deleted"})
}
