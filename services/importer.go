package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"race-results-system/models"
	"race-results-system/repository"
	"race-results-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Fatal import conditions: nothing is written when either is returned.
var (
	ErrRaceNotFound = errors.New("race not found")
	ErrBadHeader    = errors.New("unrecognized or incomplete CSV header")
)

// ImportSummary is what the caller renders after an import: row counts plus
// the non-fatal row errors collected along the way.
type ImportSummary struct {
	ImportID string   `json:"import_id"`
	Success  int      `json:"success"`
	Created  int      `json:"created"`
	Removed  int      `json:"removed"`
	Total    int      `json:"total"`
	Errors   []string `json:"errors"`
}

// ImporterService is the reconciliation engine: it makes the stored
// leaderboard of a race exactly mirror the uploaded CSV, creating, updating
// and removing rows as needed. Imports are idempotent — re-uploading the
// same file is a no-op, and an empty file clears the race.
type ImporterService struct {
	Store    repository.Store
	Resolver *ResolverService
	Results  *ResultsService
}

func NewImporterService(store repository.Store, resolver *ResolverService, results *ResultsService) *ImporterService {
	return &ImporterService{Store: store, Resolver: resolver, Results: results}
}

// ImportCsv reconciles a race's individual results against an uploaded CSV
// (direct or name-based layout). Everything runs in one transaction: either
// the full reconciliation commits or no write is visible at all.
func (s *ImporterService) ImportCsv(data []byte, raceID uint) (*ImportSummary, error) {
	if _, err := s.Store.Races().GetByID(raceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrRaceNotFound, raceID)
		}
		return nil, err
	}

	records, shape, err := parseUpload(data)
	if err != nil {
		return nil, err
	}
	if shape != utils.ShapeDirect && shape != utils.ShapeNameBased {
		return nil, fmt.Errorf("%w: expected an individual results file", ErrBadHeader)
	}

	header := records[0]
	var idxUser, idxNom, idxTemps, idxMalus int
	switch shape {
	case utils.ShapeDirect:
		idxUser = utils.HeaderIndex(header, "user_id")
		idxTemps = utils.HeaderIndex(header, "temps")
		idxMalus = utils.HeaderIndex(header, "malus")
		if idxUser < 0 || idxTemps < 0 || idxMalus < 0 {
			return nil, fmt.Errorf("%w: direct layout needs user_id, temps, malus", ErrBadHeader)
		}
	case utils.ShapeNameBased:
		idxNom = utils.HeaderIndex(header, "Nom")
		idxTemps = utils.HeaderIndex(header, "Temps")
		idxMalus = utils.HeaderIndex(header, "Malus")
		if idxNom < 0 || idxTemps < 0 || idxMalus < 0 {
			return nil, fmt.Errorf("%w: name layout needs Nom, Temps, Malus", ErrBadHeader)
		}
	}

	summary := &ImportSummary{ImportID: uuid.NewString(), Errors: []string{}}

	err = s.Store.Transaction(func(tx repository.Store) error {
		seen := map[uint]bool{}

		for i, row := range records[1:] {
			line := i + 2
			if blankRow(row) {
				continue
			}
			summary.Total++

			var res *Resolution
			var rowErr error
			if shape == utils.ShapeDirect {
				raw := field(row, idxUser)
				id, convErr := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
				if convErr != nil {
					summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: invalid user id %q", line, raw))
					continue
				}
				res, rowErr = s.Resolver.ResolveByID(tx, uint(id))
			} else {
				name := strings.TrimSpace(field(row, idxNom))
				if name == "" {
					summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: missing participant name", line))
					continue
				}
				res, rowErr = s.Resolver.ResolveByName(tx, name)
			}
			if rowErr != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %v", line, rowErr))
				continue
			}

			result := &models.IndividualResult{
				UserID: res.User.ID,
				RaceID: raceID,
				Temps:  utils.ParseTime(field(row, idxTemps)),
				Malus:  utils.ParseTime(field(row, idxMalus)),
			}
			if err := tx.Results().SaveIndividual(result); err != nil {
				return fmt.Errorf("row %d: failed to save result: %w", line, err)
			}

			seen[res.User.ID] = true
			summary.Success++
			if res.Created {
				summary.Created++
			}
		}

		// removal set: everyone currently on the leaderboard the CSV no
		// longer mentions
		current, err := tx.Results().ListIndividualByRace(raceID)
		if err != nil {
			return err
		}
		for _, r := range current {
			if seen[r.UserID] {
				continue
			}
			deleted, err := tx.Results().DeleteIndividual(r.ID)
			if err != nil {
				return err
			}
			if !deleted {
				continue
			}
			summary.Removed++
			if err := s.Results.RemoveOrphanedSynthetic(tx, r.UserID); err != nil {
				return err
			}
		}

		return s.Results.RecalculateTeamAverages(tx, raceID)
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ImportTeamCsv reconciles team-level aggregates from a team-direct CSV
// ("equ_id;temps;malus;member_count[;points]"). These rows carry no
// individual breakdown, so they are written straight into the team table
// with the Manual flag and are never touched by recomputation.
func (s *ImporterService) ImportTeamCsv(data []byte, raceID uint) (*ImportSummary, error) {
	if _, err := s.Store.Races().GetByID(raceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrRaceNotFound, raceID)
		}
		return nil, err
	}

	records, shape, err := parseUpload(data)
	if err != nil {
		return nil, err
	}
	if shape != utils.ShapeTeamDirect {
		return nil, fmt.Errorf("%w: expected a team results file", ErrBadHeader)
	}

	header := records[0]
	idxTeam := utils.HeaderIndex(header, "equ_id")
	idxTemps := utils.HeaderIndex(header, "temps")
	idxMalus := utils.HeaderIndex(header, "malus")
	idxCount := utils.HeaderIndex(header, "member_count")
	idxPoints := utils.HeaderIndex(header, "points")
	if idxTeam < 0 || idxTemps < 0 || idxMalus < 0 || idxCount < 0 {
		return nil, fmt.Errorf("%w: team layout needs equ_id, temps, malus, member_count", ErrBadHeader)
	}

	summary := &ImportSummary{ImportID: uuid.NewString(), Errors: []string{}}

	err = s.Store.Transaction(func(tx repository.Store) error {
		seen := map[uint]bool{}

		for i, row := range records[1:] {
			line := i + 2
			if blankRow(row) {
				continue
			}
			summary.Total++

			raw := field(row, idxTeam)
			id, convErr := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
			if convErr != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: invalid team id %q", line, raw))
				continue
			}
			team, err := tx.Teams().GetByID(uint(id))
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: unknown team id %d", line, id))
					continue
				}
				return err
			}

			memberCount, _ := strconv.Atoi(strings.TrimSpace(field(row, idxCount)))
			var points *float64
			if idxPoints >= 0 {
				if raw := strings.TrimSpace(field(row, idxPoints)); raw != "" {
					if v, err := strconv.ParseFloat(raw, 64); err == nil {
						points = &v
					} else {
						summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: invalid points %q", line, raw))
						continue
					}
				}
			}

			temps := utils.ParseTime(field(row, idxTemps))
			malus := utils.ParseTime(field(row, idxMalus))
			result := &models.TeamResult{
				TeamID:            team.ID,
				RaceID:            raceID,
				AverageTemps:      temps,
				AverageMalus:      malus,
				AverageTempsFinal: temps + malus,
				MemberCount:       memberCount,
				Points:            points,
				Manual:            true,
			}
			if err := tx.Results().SaveTeam(result); err != nil {
				return fmt.Errorf("row %d: failed to save team result: %w", line, err)
			}
			seen[team.ID] = true
			summary.Success++
		}

		// manual rows the CSV no longer mentions go away; derived rows
		// belong to the individual import and stay
		current, err := tx.Results().ListTeamByRace(raceID)
		if err != nil {
			return err
		}
		for _, tr := range current {
			if !tr.Manual || seen[tr.TeamID] {
				continue
			}
			deleted, err := tx.Results().DeleteTeamResult(tr.ID)
			if err != nil {
				return err
			}
			if deleted {
				summary.Removed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// parseUpload decodes the byte stream, drops leading blank lines, sniffs the
// separator and returns all records plus the detected shape. The header
// record is always records[0].
func parseUpload(data []byte) ([][]string, utils.CsvShape, error) {
	text := utils.DecodeUpload(data)
	lines := strings.Split(text, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) {
		// an empty upload still means "clear the leaderboard", but with no
		// header there is nothing to detect
		return nil, utils.ShapeUnknown, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	headerLine := lines[start]
	shape := utils.ClassifyHeader(headerLine)
	if shape == utils.ShapeUnknown {
		return nil, shape, fmt.Errorf("%w: %q", ErrBadHeader, strings.TrimSpace(headerLine))
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[start:], "\n")))
	reader.Comma = utils.SniffSeparator(headerLine)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, shape, fmt.Errorf("%w: %v", ErrBadHeader, err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, shape, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	return records, shape, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// --- HTTP endpoints ---

// ImportResults handles POST /races/:id/results/import (multipart "file").
func (s *ImporterService) ImportResults(c *fiber.Ctx) error {
	return s.handleImport(c, s.ImportCsv, "imports")
}

// ImportTeamResults handles POST /races/:id/results/import/teams.
func (s *ImporterService) ImportTeamResults(c *fiber.Ctx) error {
	return s.handleImport(c, s.ImportTeamCsv, "team-imports")
}

func (s *ImporterService) handleImport(c *fiber.Ctx, run func([]byte, uint) (*ImportSummary, error), archivePrefix string) error {
	raceID, err := c.ParamsInt("id")
	if err != nil || raceID <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid race id"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "file field is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to open uploaded file"})
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to read uploaded file"})
	}

	summary, err := run(data, uint(raceID))
	if err != nil {
		switch {
		case errors.Is(err, ErrRaceNotFound):
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrBadHeader):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("ERROR importing results for race %d: %v", raceID, err)
			return c.Status(500).JSON(fiber.Map{"error": "import failed, no changes applied"})
		}
	}

	// best-effort archive of the accepted upload; never fails the import
	if utils.ArchiveEnabled() {
		key := fmt.Sprintf("%s/race-%d/%s.csv", archivePrefix, raceID, summary.ImportID)
		if url, err := utils.ArchiveImportFile(key, data); err != nil {
			log.Printf("WARN could not archive import %s: %v", summary.ImportID, err)
		} else {
			log.Printf("[IMPORT] archived %s to %s", summary.ImportID, url)
		}
	}

	log.Printf("[IMPORT] race=%d id=%s success=%d created=%d removed=%d errors=%d",
		raceID, summary.ImportID, summary.Success, summary.Created, summary.Removed, len(summary.Errors))
	return c.JSON(summary)
}
