package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"race-results-system/models"
	"race-results-system/repository"
	"race-results-system/utils"

	"github.com/gofiber/fiber/v2"
)

// LeaderboardPageSize is the fixed page length for all leaderboard queries.
const LeaderboardPageSize = 20

// LeaderboardService is the read side: ranking, search, pagination and CSV
// export over the result tables. It never mutates anything.
type LeaderboardService struct {
	Store repository.Store
}

func NewLeaderboardService(store repository.Store) *LeaderboardService {
	return &LeaderboardService{Store: store}
}

// RankedIndividual is one individual leaderboard line.
type RankedIndividual struct {
	Rank       int     `json:"rank"`
	ResultID   uint    `json:"result_id"`
	UserID     uint    `json:"user_id"`
	RaceID     uint    `json:"race_id"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Temps      float64 `json:"temps"`
	Malus      float64 `json:"malus"`
	TempsFinal float64 `json:"temps_final"`
}

// RankedTeam is one team leaderboard line.
type RankedTeam struct {
	Rank              int      `json:"rank"`
	ResultID          uint     `json:"result_id"`
	TeamID            uint     `json:"team_id"`
	RaceID            uint     `json:"race_id"`
	TeamName          string   `json:"team_name"`
	AgeCategoryID     *uint    `json:"age_category_id,omitempty"`
	AverageTemps      float64  `json:"average_temps"`
	AverageMalus      float64  `json:"average_malus"`
	AverageTempsFinal float64  `json:"average_temps_final"`
	MemberCount       int      `json:"member_count"`
	Points            *float64 `json:"points,omitempty"`
}

// LeaderboardPage is a fixed-size page over a ranked list.
type LeaderboardPage struct {
	Data     interface{} `json:"data"`
	Page     int         `json:"page"`
	PerPage  int         `json:"per_page"`
	Total    int         `json:"total"`
	LastPage int         `json:"last_page"`
}

// UserRaceResult annotates one of a user's results with its position in the
// race and the size of the field.
type UserRaceResult struct {
	ResultID     uint    `json:"result_id"`
	RaceID       uint    `json:"race_id"`
	RaceName     string  `json:"race_name"`
	Temps        float64 `json:"temps"`
	Malus        float64 `json:"malus"`
	TempsFinal   float64 `json:"temps_final"`
	Rank         int     `json:"rank"`
	Participants int     `json:"participants"`
}

// RankIndividuals returns the full ranked individual list: filtered by race
// (nil means all races) and search term, sorted ascending by temps+malus
// with ties broken by user id, rank = 1-based position.
func (s *LeaderboardService) RankIndividuals(raceID *uint, search string, publicOnly bool) ([]RankedIndividual, error) {
	var results []models.IndividualResult
	var err error
	if raceID != nil {
		results, err = s.Store.Results().ListIndividualByRace(*raceID)
	} else {
		results, err = s.Store.Results().ListAllIndividual()
	}
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	filtered := results[:0:0]
	for _, r := range results {
		if publicOnly && !r.User.IsPublic {
			continue
		}
		if needle != "" && !matchesUser(&r.User, needle) {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.Slice(filtered, func(i, j int) bool {
		fi, fj := filtered[i].TempsFinal(), filtered[j].TempsFinal()
		if fi != fj {
			return fi < fj
		}
		return filtered[i].UserID < filtered[j].UserID
	})

	ranked := make([]RankedIndividual, len(filtered))
	for i, r := range filtered {
		ranked[i] = RankedIndividual{
			Rank:       i + 1,
			ResultID:   r.ID,
			UserID:     r.UserID,
			RaceID:     r.RaceID,
			FirstName:  r.User.FirstName,
			LastName:   r.User.LastName,
			Temps:      r.Temps,
			Malus:      r.Malus,
			TempsFinal: r.TempsFinal(),
		}
	}
	return ranked, nil
}

// RankTeams returns the full ranked team list. Teams order by average final
// time ascending; when the race is competitive and carries points, points
// descending wins first. Ties break on team id.
func (s *LeaderboardService) RankTeams(raceID *uint, search string, publicOnly bool) ([]RankedTeam, error) {
	var results []models.TeamResult
	var err error
	if raceID != nil {
		results, err = s.Store.Results().ListTeamByRace(*raceID)
	} else {
		results, err = s.Store.Results().ListAllTeam()
	}
	if err != nil {
		return nil, err
	}

	usePoints := false
	if raceID != nil {
		race, err := s.Store.Races().GetByID(*raceID)
		if err != nil {
			return nil, err
		}
		if race.IsCompetitive {
			for _, tr := range results {
				if tr.Points != nil {
					usePoints = true
					break
				}
			}
		}
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	filtered := results[:0:0]
	for _, tr := range results {
		if needle != "" && !strings.Contains(strings.ToLower(tr.Team.Name), needle) {
			continue
		}
		if publicOnly {
			visible, err := s.teamFullyPublic(&tr)
			if err != nil {
				return nil, err
			}
			if !visible {
				continue
			}
		}
		filtered = append(filtered, tr)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if usePoints {
			pi, pj := float64(0), float64(0)
			if filtered[i].Points != nil {
				pi = *filtered[i].Points
			}
			if filtered[j].Points != nil {
				pj = *filtered[j].Points
			}
			if pi != pj {
				return pi > pj
			}
		}
		if filtered[i].AverageTempsFinal != filtered[j].AverageTempsFinal {
			return filtered[i].AverageTempsFinal < filtered[j].AverageTempsFinal
		}
		return filtered[i].TeamID < filtered[j].TeamID
	})

	ranked := make([]RankedTeam, len(filtered))
	for i, tr := range filtered {
		ranked[i] = RankedTeam{
			Rank:              i + 1,
			ResultID:          tr.ID,
			TeamID:            tr.TeamID,
			RaceID:            tr.RaceID,
			TeamName:          tr.Team.Name,
			AgeCategoryID:     tr.AgeCategoryID,
			AverageTemps:      tr.AverageTemps,
			AverageMalus:      tr.AverageMalus,
			AverageTempsFinal: tr.AverageTempsFinal,
			MemberCount:       tr.MemberCount,
			Points:            tr.Points,
		}
	}
	return ranked, nil
}

// teamFullyPublic: every member contributing a result for the race must be
// public. Manual aggregates have no breakdown, so the whole roster counts.
func (s *LeaderboardService) teamFullyPublic(tr *models.TeamResult) (bool, error) {
	members, err := s.Store.Teams().MembersByTeam(tr.TeamID)
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return false, nil
	}
	for _, m := range members {
		contributes := tr.Manual
		if !tr.Manual {
			_, err := s.Store.Results().GetIndividual(m.UserID, tr.RaceID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return false, err
			}
			contributes = true
		}
		if contributes && !m.User.IsPublic {
			return false, nil
		}
	}
	return true, nil
}

// UserResults lists a user's results across races, annotated with the
// rank-in-race and the race's field size. sortOrder is "best" (default,
// lowest rank first) or "worst".
func (s *LeaderboardService) UserResults(userID uint, search, sortOrder string) ([]UserRaceResult, error) {
	results, err := s.Store.Results().ListIndividualByUser(userID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	var out []UserRaceResult
	for _, r := range results {
		race, err := s.Store.Races().GetByID(r.RaceID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if needle != "" && !strings.Contains(strings.ToLower(race.Name), needle) {
			continue
		}
		raceID := r.RaceID
		ranked, err := s.RankIndividuals(&raceID, "", false)
		if err != nil {
			return nil, err
		}
		entry := UserRaceResult{
			ResultID:     r.ID,
			RaceID:       r.RaceID,
			RaceName:     race.Name,
			Temps:        r.Temps,
			Malus:        r.Malus,
			TempsFinal:   r.TempsFinal(),
			Participants: len(ranked),
		}
		for _, line := range ranked {
			if line.UserID == userID {
				entry.Rank = line.Rank
				break
			}
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if sortOrder == "worst" {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

// ExportCsv renders a race's leaderboard (kind "individual" or "team") as
// semicolon-delimited text with a UTF-8 BOM, for spreadsheet import. Team
// exports of competitive races with several age categories come grouped in
// category blocks.
func (s *LeaderboardService) ExportCsv(raceID uint, kind string) (string, error) {
	race, err := s.Store.Races().GetByID(raceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: id %d", ErrRaceNotFound, raceID)
		}
		return "", err
	}

	var b strings.Builder
	b.WriteString("\uFEFF")

	switch kind {
	case "individual":
		ranked, err := s.RankIndividuals(&raceID, "", false)
		if err != nil {
			return "", err
		}
		b.WriteString("Rang;Nom;Temps;Malus;Temps Final\n")
		for _, line := range ranked {
			fmt.Fprintf(&b, "%d;%s %s;%s;%s;%s\n",
				line.Rank, line.FirstName, line.LastName,
				utils.FormatTime(line.Temps), utils.FormatTime(line.Malus), utils.FormatTime(line.TempsFinal))
		}
	case "team":
		ranked, err := s.RankTeams(&raceID, "", false)
		if err != nil {
			return "", err
		}
		b.WriteString("Classement;Equipe;Categorie_age;Temps;Malus;Temps_final;Points\n")
		if race.IsCompetitive && len(race.AgeCategories) > 1 {
			writeTeamBlocks(&b, race, ranked)
		} else {
			for _, line := range ranked {
				writeTeamLine(&b, race, line)
			}
		}
	default:
		return "", fmt.Errorf("unknown export kind %q", kind)
	}
	return b.String(), nil
}

func writeTeamBlocks(b *strings.Builder, race *models.Race, ranked []RankedTeam) {
	for _, cat := range race.AgeCategories {
		var block []RankedTeam
		for _, line := range ranked {
			if line.AgeCategoryID != nil && *line.AgeCategoryID == cat.ID {
				block = append(block, line)
			}
		}
		if len(block) == 0 {
			continue
		}
		fmt.Fprintf(b, "# === CATEGORIE: %s (%d-%d ans) ===\n", cat.Name, cat.MinAge, cat.MaxAge)
		for _, line := range block {
			writeTeamLine(b, race, line)
		}
	}
	// uncategorized teams trail the blocks
	for _, line := range ranked {
		if line.AgeCategoryID == nil {
			writeTeamLine(b, race, line)
		}
	}
}

func writeTeamLine(b *strings.Builder, race *models.Race, line RankedTeam) {
	category := ""
	if line.AgeCategoryID != nil {
		for _, cat := range race.AgeCategories {
			if cat.ID == *line.AgeCategoryID {
				category = cat.Name
				break
			}
		}
	}
	points := ""
	if line.Points != nil {
		points = fmt.Sprintf("%g", *line.Points)
	}
	fmt.Fprintf(b, "%d;%s;%s;%s;%s;%s;%s\n",
		line.Rank, line.TeamName, category,
		utils.FormatTime(line.AverageTemps), utils.FormatTime(line.AverageMalus),
		utils.FormatTime(line.AverageTempsFinal), points)
}

func matchesUser(u *models.User, needle string) bool {
	return strings.Contains(strings.ToLower(u.FirstName), needle) ||
		strings.Contains(strings.ToLower(u.LastName), needle) ||
		strings.Contains(strings.ToLower(u.Email), needle)
}

func paginate[T any](items []T, page int) *LeaderboardPage {
	if page < 1 {
		page = 1
	}
	total := len(items)
	lastPage := (total + LeaderboardPageSize - 1) / LeaderboardPageSize
	if lastPage == 0 {
		lastPage = 1
	}
	start := (page - 1) * LeaderboardPageSize
	if start > total {
		start = total
	}
	end := start + LeaderboardPageSize
	if end > total {
		end = total
	}
	return &LeaderboardPage{
		Data:     items[start:end],
		Page:     page,
		PerPage:  LeaderboardPageSize,
		Total:    total,
		LastPage: lastPage,
	}
}

// --- HTTP endpoints ---

func queryRaceID(c *fiber.Ctx) *uint {
	if v := c.QueryInt("race_id", 0); v > 0 {
		id := uint(v)
		return &id
	}
	return nil
}

// GetIndividualLeaderboard handles GET /leaderboard.
func (s *LeaderboardService) GetIndividualLeaderboard(c *fiber.Ctx) error {
	ranked, err := s.RankIndividuals(queryRaceID(c), c.Query("search"), false)
	if err != nil {
		log.Printf("ERROR building individual leaderboard: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
	}
	return c.JSON(paginate(ranked, c.QueryInt("page", 1)))
}

// GetTeamLeaderboard handles GET /leaderboard/teams.
func (s *LeaderboardService) GetTeamLeaderboard(c *fiber.Ctx) error {
	ranked, err := s.RankTeams(queryRaceID(c), c.Query("search"), false)
	if err != nil {
		log.Printf("ERROR building team leaderboard: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
	}
	return c.JSON(paginate(ranked, c.QueryInt("page", 1)))
}

// GetPublicLeaderboard handles GET /public/leaderboard?kind=individual|team —
// only participants (or whole teams) who opted into public visibility.
func (s *LeaderboardService) GetPublicLeaderboard(c *fiber.Ctx) error {
	kind := c.Query("kind", "individual")
	switch kind {
	case "individual":
		ranked, err := s.RankIndividuals(queryRaceID(c), c.Query("search"), true)
		if err != nil {
			log.Printf("ERROR building public leaderboard: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
		}
		return c.JSON(paginate(ranked, c.QueryInt("page", 1)))
	case "team":
		ranked, err := s.RankTeams(queryRaceID(c), c.Query("search"), true)
		if err != nil {
			log.Printf("ERROR building public team leaderboard: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
		}
		return c.JSON(paginate(ranked, c.QueryInt("page", 1)))
	default:
		return c.Status(400).JSON(fiber.Map{"error": "kind must be individual or team"})
	}
}

// GetUserResults handles GET /users/:user_id/results.
func (s *LeaderboardService) GetUserResults(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("user_id")
	if err != nil || userID <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid user id"})
	}
	sortOrder := c.Query("sort", "best")
	if sortOrder != "best" && sortOrder != "worst" {
		return c.Status(400).JSON(fiber.Map{"error": "sort must be best or worst"})
	}
	results, err := s.UserResults(uint(userID), c.Query("search"), sortOrder)
	if err != nil {
		log.Printf("ERROR fetching results for user %d: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch user results"})
	}
	return c.JSON(results)
}

// ExportResults handles GET /races/:id/results/export?kind=individual|team,
// returning the CSV as an attachment.
func (s *LeaderboardService) ExportResults(c *fiber.Ctx) error {
	raceID, err := c.ParamsInt("id")
	if err != nil || raceID <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid race id"})
	}
	kind := c.Query("kind", "individual")
	content, err := s.ExportCsv(uint(raceID), kind)
	if err != nil {
		if errors.Is(err, ErrRaceNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set("Content-Type", "text/csv; charset=utf-8")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=race-%d-%s.csv", raceID, kind))
	return c.SendString(content)
}
