// workers/member_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"race-results-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberFromDirectory matches the JSON the club platform's member API
// returns for each registrant.
type MemberFromDirectory struct {
	MemberReference  string     `json:"member_reference"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email"`
	IsPublic         bool       `json:"is_public"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	MedicalReference *string    `json:"medical_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GetMemberChangesResponse is the top-level structure of the directory response.
type GetMemberChangesResponse struct {
	Members []MemberFromDirectory `json:"members"`
}

// MemberSyncWorker mirrors the club platform's member directory into the
// local users table so the participant resolver always matches against
// fresh names. It only touches directory rows (member_reference keyed) —
// imported users are owned by the results importer and never synced over.
type MemberSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewMemberSyncWorker(db *gorm.DB, directoryBaseURL, endpointPath, serviceToken string) *MemberSyncWorker {
	return &MemberSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      directoryBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *MemberSyncWorker) Start(ctx context.Context) {
	log.Println("Starting member directory sync worker (club platform -> users)")
	go w.run(ctx)
}

func (w *MemberSyncWorker) run(ctx context.Context) {
	// initial backfill from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("[SYNC] initial member sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("[SYNC] member sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("Member directory sync worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt among directory-sourced
// rows; imported rows are excluded so their churn never moves the cursor.
func (w *MemberSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM users WHERE member_reference IS NOT NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches member changes since the cursor and upserts them into
// the users table keyed by member_reference.
func (w *MemberSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid directory base URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to directory failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("directory non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetMemberChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	if len(response.Members) == 0 {
		return nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Members {
		ref := remote.MemberReference
		localUser := models.User{
			FirstName:        remote.FirstName,
			LastName:         remote.LastName,
			Email:            remote.Email,
			IsPublic:         remote.IsPublic,
			BirthDate:        remote.BirthDate,
			MemberReference:  &ref,
			MedicalReference: remote.MedicalReference,
			Imported:         false,
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "member_reference"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "email", "is_public",
				"birth_date", "medical_reference", "updated_at",
			}),
		}).Create(&localUser).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] failed to upsert user (member_reference=%q): %v", ref, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] Synced %d member(s) (%d upserted, %d errors) since %s",
		len(response.Members), upsertCount, errorCount, sinceStr)
	return nil
}
