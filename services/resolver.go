package services

import (
	"errors"
	"fmt"
	"strings"

	"race-results-system/models"
	"race-results-system/repository"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
)

// PlaceholderEmailDomain hosts the deterministic addresses minted for
// imported participants. Display convention only — synthetic users are
// identified by the Imported flag, never by their address.
const PlaceholderEmailDomain = "imported.local"

// Resolution is the outcome of matching one CSV row to a participant.
type Resolution struct {
	User    *models.User
	Team    *models.Team
	Created bool
}

// ResolverService maps CSV display names (or explicit ids) to a canonical
// user/team pairing, creating placeholder users and solo teams when the
// directory has no match.
type ResolverService struct {
	Store repository.Store
}

func NewResolverService(store repository.Store) *ResolverService {
	return &ResolverService{Store: store}
}

// ResolveByID resolves an explicit user id from a direct-mode CSV row.
func (s *ResolverService) ResolveByID(st repository.Store, userID uint) (*Resolution, error) {
	user, err := st.Users().GetByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("unknown user id %d", userID)
		}
		return nil, err
	}
	team, err := s.ensureTeam(st, user)
	if err != nil {
		return nil, err
	}
	return &Resolution{User: user, Team: team}, nil
}

// ResolveByName resolves a display name from a name-mode CSV row. The name
// is split into first/last tokens and matched case-insensitively in both
// "First Last" and "Last First" orders — results files from timing systems
// routinely put the surname first. A second pass folds diacritics so
// "Jérôme" still finds "Jerome". No match means: create.
func (s *ResolverService) ResolveByName(st repository.Store, name string) (*Resolution, error) {
	first, last := SplitNameTokens(name)
	if first == "" {
		return nil, fmt.Errorf("empty participant name")
	}

	user, err := s.lookupDirectory(st, first, last)
	if err != nil {
		return nil, err
	}

	created := false
	if user == nil {
		user, err = s.createImportedUser(st, first, last)
		if err != nil {
			return nil, err
		}
		created = true
	}

	team, err := s.ensureTeam(st, user)
	if err != nil {
		return nil, err
	}
	return &Resolution{User: user, Team: team, Created: created}, nil
}

func (s *ResolverService) lookupDirectory(st repository.Store, first, last string) (*models.User, error) {
	attempts := [][2]string{
		{first, last},
		{last, first},
		{unidecode.Unidecode(first), unidecode.Unidecode(last)},
		{unidecode.Unidecode(last), unidecode.Unidecode(first)},
	}
	for _, a := range attempts {
		user, err := st.Users().FindByNameTokens(a[0], a[1])
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *ResolverService) createImportedUser(st repository.Store, first, last string) (*models.User, error) {
	base := slug.Make(first + "." + last)
	email := base + "@" + PlaceholderEmailDomain
	// distinct homonyms get a numeric suffix
	for i := 2; ; i++ {
		_, err := st.Users().GetByEmail(email)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		email = fmt.Sprintf("%s-%d@%s", base, i, PlaceholderEmailDomain)
	}

	user := &models.User{
		FirstName: first,
		LastName:  last,
		Email:     email,
		IsPublic:  false,
		Imported:  true,
	}
	if err := st.Users().Create(user); err != nil {
		return nil, fmt.Errorf("failed to create imported user %q: %w", first+" "+last, err)
	}
	return user, nil
}

// ensureTeam returns the user's existing team when any membership exists
// (imported or organic — never create a second team for a team member), and
// otherwise creates an imported solo team named after the participant.
func (s *ResolverService) ensureTeam(st repository.Store, user *models.User) (*models.Team, error) {
	memberships, err := st.Teams().MembershipsByUser(user.ID)
	if err != nil {
		return nil, err
	}
	if len(memberships) > 0 {
		return st.Teams().GetByID(memberships[0].TeamID)
	}

	team := &models.Team{
		Name:     user.FullName(),
		Imported: true,
	}
	if err := st.Teams().Create(team); err != nil {
		return nil, fmt.Errorf("failed to create solo team for user %d: %w", user.ID, err)
	}
	member := &models.TeamMember{
		TeamID:   team.ID,
		UserID:   user.ID,
		Imported: true,
	}
	if err := st.Teams().CreateMember(member); err != nil {
		return nil, fmt.Errorf("failed to attach user %d to team %d: %w", user.ID, team.ID, err)
	}
	return team, nil
}

// SplitNameTokens breaks a display name into first/last parts. A single
// token becomes the first name with "Unknown" as surname; extra tokens all
// fold into the surname ("Jean Van Der Berg" → "Jean", "Van Der Berg").
func SplitNameTokens(name string) (first, last string) {
	tokens := strings.Fields(strings.TrimSpace(name))
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], "Unknown"
	default:
		return tokens[0], strings.Join(tokens[1:], " ")
	}
}
