package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/windwalker46/chipin/app/models"
)

type fakeRepo struct {
	chips        map[uint]*models.Chip
	participants map[uint]*models.ChipParticipant
	objectives   map[uint]*models.ChipObjective
	audits       []models.AuditEvent
	nextID       uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chips:        make(map[uint]*models.Chip),
		participants: make(map[uint]*models.ChipParticipant),
		objectives:   make(map[uint]*models.ChipObjective),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) Transact(fn func(Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) CreateChip(chip *models.Chip) error {
	chip.ID = f.id()
	chip.CreatedAt = time.Now()
	f.chips[chip.ID] = chip
	return nil
}

func (f *fakeRepo) GetChipByID(id uint) (*models.Chip, error) {
	chip, ok := f.chips[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *chip
	return &copied, nil
}

func (f *fakeRepo) GetChipByCode(publicCode string) (*models.Chip, error) {
	for _, chip := range f.chips {
		if chip.PublicCode == publicCode {
			copied := *chip
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListChipsByCreator(creatorID uint) ([]models.Chip, error) {
	var out []models.Chip
	for _, chip := range f.chips {
		if chip.CreatorID == creatorID {
			out = append(out, *chip)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListChipsPastDeadline(now time.Time) ([]models.Chip, error) {
	var out []models.Chip
	for _, chip := range f.chips {
		if chip.IsOpen() && !chip.DeadlineAt.After(now) {
			out = append(out, *chip)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetChipStatus(chipID uint, fromStatus *string, toStatus string) (int64, error) {
	chip, ok := f.chips[chipID]
	if !ok {
		return 0, nil
	}
	if fromStatus != nil && chip.Status != *fromStatus {
		return 0, nil
	}
	chip.Status = toStatus
	now := time.Now()
	switch toStatus {
	case models.ChipStatusActive:
		chip.ActivatedAt = &now
	case models.ChipStatusCompleted:
		chip.CompletedAt = &now
	case models.ChipStatusExpired:
		chip.ExpiredAt = &now
	case models.ChipStatusCanceled:
		chip.CanceledAt = &now
	}
	return 1, nil
}

func (f *fakeRepo) RefreshChipStats(chipID uint) (int, error) {
	chip, ok := f.chips[chipID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	participants := 0
	for _, p := range f.participants {
		if p.ChipID == chipID {
			participants++
		}
	}
	objectives := 0
	for _, o := range f.objectives {
		if o.ChipID == chipID {
			objectives++
		}
	}
	chip.ParticipantCount = participants
	chip.ObjectiveCount = objectives
	return participants, nil
}

func (f *fakeRepo) RefreshChipCompletion(chipID uint) (int, int, error) {
	chip, ok := f.chips[chipID]
	if !ok {
		return 0, 0, gorm.ErrRecordNotFound
	}
	completed, total := 0, 0
	for _, o := range f.objectives {
		if o.ChipID != chipID {
			continue
		}
		total++
		if o.IsCompleted() {
			completed++
		}
	}
	chip.CompletedObjectiveCount = completed
	chip.ObjectiveCount = total
	return completed, total, nil
}

func (f *fakeRepo) CreateParticipant(p *models.ChipParticipant) error {
	for _, existing := range f.participants {
		if existing.ChipID != p.ChipID {
			continue
		}
		if p.UserID != nil && existing.UserID != nil && *existing.UserID == *p.UserID {
			return fmt.Errorf("duplicate entry for key ux_chip_participants_user")
		}
		if strings.EqualFold(existing.DisplayName, p.DisplayName) {
			return fmt.Errorf("duplicate entry for key ux_chip_participants_name")
		}
	}
	p.ID = f.id()
	p.JoinedAt = time.Now()
	f.participants[p.ID] = p
	return nil
}

func (f *fakeRepo) GetParticipantByID(chipID, participantID uint) (*models.ChipParticipant, error) {
	p, ok := f.participants[participantID]
	if !ok || p.ChipID != chipID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeRepo) GetParticipantByUser(chipID, userID uint) (*models.ChipParticipant, error) {
	for _, p := range f.participants {
		if p.ChipID == chipID && p.UserID != nil && *p.UserID == userID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetParticipantByName(chipID uint, displayName string) (*models.ChipParticipant, error) {
	for _, p := range f.participants {
		if p.ChipID == chipID && strings.EqualFold(p.DisplayName, displayName) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListParticipants(chipID uint) ([]models.ChipParticipant, error) {
	var out []models.ChipParticipant
	for _, p := range f.participants {
		if p.ChipID == chipID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateObjective(o *models.ChipObjective) error {
	o.ID = f.id()
	o.CreatedAt = time.Now()
	f.objectives[o.ID] = o
	return nil
}

func (f *fakeRepo) GetObjective(chipID, objectiveID uint) (*models.ChipObjective, error) {
	o, ok := f.objectives[objectiveID]
	if !ok || o.ChipID != chipID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *o
	return &copied, nil
}

func (f *fakeRepo) ListObjectives(chipID uint) ([]models.ChipObjective, error) {
	var out []models.ChipObjective
	for _, o := range f.objectives {
		if o.ChipID == chipID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetObjectiveCompletion(chipID, objectiveID uint, completerID *uint) error {
	o, ok := f.objectives[objectiveID]
	if !ok || o.ChipID != chipID {
		return gorm.ErrRecordNotFound
	}
	o.CompletedByParticipantID = completerID
	if completerID != nil {
		now := time.Now()
		o.CompletedAt = &now
	} else {
		o.CompletedAt = nil
	}
	return nil
}

func (f *fakeRepo) InsertAuditEvent(event *models.AuditEvent) error {
	event.ID = f.id()
	event.CreatedAt = time.Now()
	f.audits = append(f.audits, *event)
	return nil
}

func (f *fakeRepo) auditCount(eventType string) int {
	n := 0
	for _, e := range f.audits {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func validCreateInput(threshold int) CreateChipInput {
	return CreateChipInput{
		CreatorID:          1,
		CreatorDisplayName: "Alice",
		Title:              "Hike the ridge trail",
		ThresholdCount:     threshold,
		DeadlineAt:         time.Now().Add(48 * time.Hour),
	}
}

func TestCreateChipValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	in := validCreateInput(2)
	in.Title = "   "
	_, err := svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrTitleRequired)

	in = validCreateInput(0)
	_, err = svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	in = validCreateInput(101)
	_, err = svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	in = validCreateInput(2)
	in.DeadlineAt = time.Now().Add(5 * time.Minute)
	_, err = svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	in = validCreateInput(2)
	in.DeadlineAt = time.Now().Add(8 * 24 * time.Hour)
	_, err = svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	in = validCreateInput(2)
	in.CreatorDisplayName = ""
	_, err = svc.CreateChip(ctx, in)
	assert.ErrorIs(t, err, ErrDisplayNameNeeded)
}

func TestCreateChipSeedsCreatorAndObjectives(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	in := validCreateInput(3)
	in.Objectives = []ObjectiveInput{
		{Title: "Book the campsite"},
		{Title: "  "},
		{Title: "Plan the route"},
	}
	chip, err := svc.CreateChip(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.ChipStatusPending, chip.Status)
	assert.Equal(t, 1, chip.ParticipantCount)
	assert.Equal(t, 2, chip.ObjectiveCount)
	assert.NotEmpty(t, chip.PublicCode)

	participants, err := repo.ListParticipants(chip.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.True(t, participants[0].IsCreator)
	assert.Equal(t, "Alice", participants[0].DisplayName)

	objectives, err := repo.ListObjectives(chip.ID)
	require.NoError(t, err)
	require.Len(t, objectives, 2)
	for _, o := range objectives {
		require.NotNil(t, o.AssignedParticipantID)
		assert.Equal(t, participants[0].ID, *o.AssignedParticipantID)
	}

	assert.Equal(t, 1, repo.auditCount("chip_created"))
}

func TestCreateChipThresholdOneActivatesImmediately(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	chip, err := svc.CreateChip(context.Background(), validCreateInput(1))
	require.NoError(t, err)

	assert.Equal(t, models.ChipStatusActive, chip.Status)
	assert.NotNil(t, chip.ActivatedAt)
	assert.Equal(t, 1, repo.auditCount("chip_activated"))
}

func TestJoinChipActivatesAtThreshold(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(2))
	require.NoError(t, err)
	require.Equal(t, models.ChipStatusPending, chip.Status)

	_, err = svc.JoinChip(ctx, chip.ID, nil, "Bob")
	require.NoError(t, err)

	after, err := repo.GetChipByID(chip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChipStatusActive, after.Status)
	assert.NotNil(t, after.ActivatedAt)
	assert.Equal(t, 2, after.ParticipantCount)
	assert.Equal(t, 1, repo.auditCount("chip_activated"))
}

func TestEvaluateThresholdIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(1))
	require.NoError(t, err)
	firstActivation := repo.chips[chip.ID].ActivatedAt

	require.NoError(t, svc.EvaluateThreshold(ctx, chip.ID))
	require.NoError(t, svc.EvaluateThreshold(ctx, chip.ID))

	after, err := repo.GetChipByID(chip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChipStatusActive, after.Status)
	assert.Equal(t, firstActivation, after.ActivatedAt)
	assert.Equal(t, 1, repo.auditCount("chip_activated"))
}

func TestJoinChipCoalescesDuplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(10))
	require.NoError(t, err)

	userID := uint(7)
	first, err := svc.JoinChip(ctx, chip.ID, &userID, "Bob")
	require.NoError(t, err)

	again, err := svc.JoinChip(ctx, chip.ID, &userID, "Robert")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	guest, err := svc.JoinChip(ctx, chip.ID, nil, "Carla")
	require.NoError(t, err)
	guestAgain, err := svc.JoinChip(ctx, chip.ID, nil, "CARLA")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, guestAgain.ID)

	after, err := repo.GetChipByID(chip.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.ParticipantCount)
	assert.Equal(t, 2, repo.auditCount("participant_joined"))
}

func TestJoinChipRejectedWhenClosed(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(5))
	require.NoError(t, err)

	_, err = repo.SetChipStatus(chip.ID, nil, models.ChipStatusCanceled)
	require.NoError(t, err)

	_, err = svc.JoinChip(ctx, chip.ID, nil, "Late Larry")
	assert.ErrorIs(t, err, ErrChipClosed)
}

// closingRepo cancels the chip right before the write transaction opens,
// standing in for an owner cancel landing between request parsing and the
// write. The in-transaction status read must still reject the operation.
type closingRepo struct {
	*fakeRepo
	chipID uint
	closed bool
}

func (r *closingRepo) Transact(fn func(Repository) error) error {
	if !r.closed {
		r.closed = true
		_, _ = r.fakeRepo.SetChipStatus(r.chipID, nil, models.ChipStatusCanceled)
	}
	return fn(r.fakeRepo)
}

func TestJoinChipRejectedWhenClosedConcurrently(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	chip, err := NewService(repo).CreateChip(ctx, validCreateInput(5))
	require.NoError(t, err)

	racing := &closingRepo{fakeRepo: repo, chipID: chip.ID}
	_, err = NewService(racing).JoinChip(ctx, chip.ID, nil, "Late Larry")
	assert.ErrorIs(t, err, ErrChipClosed)

	participants, err := repo.ListParticipants(chip.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestToggleObjectiveRejectedWhenClosedConcurrently(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	in := validCreateInput(1)
	in.Objectives = []ObjectiveInput{{Title: "Reserve a table"}}
	chip, err := NewService(repo).CreateChip(ctx, in)
	require.NoError(t, err)

	participants, err := repo.ListParticipants(chip.ID)
	require.NoError(t, err)
	objectives, err := repo.ListObjectives(chip.ID)
	require.NoError(t, err)

	racing := &closingRepo{fakeRepo: repo, chipID: chip.ID}
	_, err = NewService(racing).ToggleObjective(ctx, chip.ID, objectives[0].ID, participants[0].ID)
	assert.ErrorIs(t, err, ErrChipClosed)

	after, err := repo.GetObjective(chip.ID, objectives[0].ID)
	require.NoError(t, err)
	assert.False(t, after.IsCompleted())
}

func TestToggleObjective(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	in := validCreateInput(1)
	in.Objectives = []ObjectiveInput{{Title: "Reserve a table"}}
	chip, err := svc.CreateChip(ctx, in)
	require.NoError(t, err)

	participants, err := repo.ListParticipants(chip.ID)
	require.NoError(t, err)
	creator := participants[0]
	objectives, err := repo.ListObjectives(chip.ID)
	require.NoError(t, err)
	objective := objectives[0]

	toggled, err := svc.ToggleObjective(ctx, chip.ID, objective.ID, creator.ID)
	require.NoError(t, err)
	require.NotNil(t, toggled.CompletedByParticipantID)
	assert.Equal(t, creator.ID, *toggled.CompletedByParticipantID)
	assert.NotNil(t, toggled.CompletedAt)

	after, err := repo.GetChipByID(chip.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CompletedObjectiveCount)

	cleared, err := svc.ToggleObjective(ctx, chip.ID, objective.ID, creator.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.CompletedByParticipantID)
	assert.Nil(t, cleared.CompletedAt)

	after, err = repo.GetChipByID(chip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CompletedObjectiveCount)
}

func TestToggleObjectiveRejectedOnTerminalChip(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	in := validCreateInput(1)
	in.Objectives = []ObjectiveInput{{Title: "Reserve a table"}}
	chip, err := svc.CreateChip(ctx, in)
	require.NoError(t, err)

	participants, _ := repo.ListParticipants(chip.ID)
	objectives, _ := repo.ListObjectives(chip.ID)

	_, err = svc.CompleteChip(ctx, chip.ID, chip.CreatorID)
	require.NoError(t, err)

	_, err = svc.ToggleObjective(ctx, chip.ID, objectives[0].ID, participants[0].ID)
	assert.ErrorIs(t, err, ErrChipClosed)
}

func TestOwnerTransitions(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(1))
	require.NoError(t, err)
	require.Equal(t, models.ChipStatusActive, chip.Status)

	_, err = svc.CompleteChip(ctx, chip.ID, 999)
	assert.ErrorIs(t, err, ErrNotCreator)

	done, err := svc.CompleteChip(ctx, chip.ID, chip.CreatorID)
	require.NoError(t, err)
	assert.Equal(t, models.ChipStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, repo.auditCount("chip_completed"))

	_, err = svc.CancelChip(ctx, chip.ID, chip.CreatorID)
	assert.Error(t, err)
}

func TestCancelPendingChip(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	chip, err := svc.CreateChip(ctx, validCreateInput(5))
	require.NoError(t, err)

	canceled, err := svc.CancelChip(ctx, chip.ID, chip.CreatorID)
	require.NoError(t, err)
	assert.Equal(t, models.ChipStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, 1, repo.auditCount("chip_canceled"))
}
