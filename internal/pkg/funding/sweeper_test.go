package funding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windwalker46/chipin/app/models"
)

// seedSweepPool creates an active pool past its deadline with succeeded
// contributions, each with a payment intent on record.
func seedSweepPool(t *testing.T, repo *fakeRepo, goal *int64, amounts ...int64) (*models.Pool, []*models.Contribution) {
	t.Helper()
	organizer := onboardedOrganizer(repo)
	pool := &models.Pool{
		PublicCode:      "sweeppool1",
		OrganizerID:     organizer.ID,
		Title:           "Team dinner",
		GoalAmountCents: goal,
		DeadlineAt:      time.Now().Add(-time.Hour),
		Status:          models.PoolStatusActive,
	}
	require.NoError(t, repo.CreatePool(pool))

	var contributions []*models.Contribution
	for i, amount := range amounts {
		c := &models.Contribution{
			PoolID:          pool.ID,
			ContributorName: "Contributor",
			AmountCents:     amount,
			Status:          models.ContributionStatusSucceeded,
		}
		require.NoError(t, repo.CreateContribution(c))
		require.NoError(t, repo.UpsertContributionPayment(&models.ContributionPayment{
			ContributionID:  c.ID,
			PaymentIntentID: intentID(i),
		}))
		contributions = append(contributions, c)
	}
	return pool, contributions
}

func intentID(i int) string {
	return "pi_sweep_" + string(rune('a'+i))
}

func TestSweepPoolsFundsGoalMetPool(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeClient()
	svc := NewService(repo, client, testConfig())
	ctx := context.Background()

	pool, _ := seedSweepPool(t, repo, int64ptr(5000), 3000, 2500)

	result, err := svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Transitioned)

	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusFunded, after.Status)
	assert.NotNil(t, after.FundedAt)
	assert.Empty(t, client.refunds)
	assert.Equal(t, 1, repo.auditCount("pool_funded_by_deadline"))
}

func TestSweepPoolSkipsPoolFundedConcurrently(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeClient()
	svc := NewService(repo, client, testConfig())
	ctx := context.Background()

	pool, contributions := seedSweepPool(t, repo, int64ptr(5000), 3000, 2500)

	// A checkout webhook funds the pool after the sweep took its candidate
	// list; the sweep still holds the stale active row.
	stale := *pool
	stale.Status = models.PoolStatusActive
	from := models.PoolStatusActive
	rows, err := repo.SetPoolStatus(pool.ID, &from, models.PoolStatusFunded)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	transitioned, err := svc.sweepPool(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, transitioned)

	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusFunded, after.Status)
	assert.Empty(t, client.refunds)
	for _, c := range contributions {
		got, err := repo.GetContributionByID(c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ContributionStatusSucceeded, got.Status)
	}
}

func TestSweepPoolsRefundsShortfall(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeClient()
	svc := NewService(repo, client, testConfig())
	ctx := context.Background()

	pool, contributions := seedSweepPool(t, repo, int64ptr(10000), 3000, 2500)

	result, err := svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Transitioned)

	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusExpired, after.Status)
	assert.NotNil(t, after.ExpiredAt)
	assert.Equal(t, int64(0), after.CollectedAmountCents)

	assert.Len(t, client.refunds, 2)
	for _, c := range contributions {
		got, err := repo.GetContributionByID(c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ContributionStatusRefunded, got.Status)

		payment, err := repo.GetContributionPayment(c.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, payment.RefundID)
	}

	assert.Equal(t, 1, repo.auditCount("pool_refunding_started"))
	assert.Equal(t, 2, repo.auditCount("contribution_refunded"))
	assert.Equal(t, 1, repo.auditCount("pool_expired_and_refunded"))
}

func TestSweepPoolsRetriesFailedRefunds(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeClient()
	svc := NewService(repo, client, testConfig())
	ctx := context.Background()

	pool, contributions := seedSweepPool(t, repo, int64ptr(10000), 3000, 2500)
	client.failRefunds[intentID(1)] = true

	result, err := svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transitioned)

	// One refund failed, so the pool stays refunding with one contribution
	// still succeeded.
	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusRefunding, after.Status)

	first, err := repo.GetContributionByID(contributions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusRefunded, first.Status)
	second, err := repo.GetContributionByID(contributions[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusSucceeded, second.Status)

	// The next sweep retries only the contribution still marked succeeded.
	client.failRefunds = map[string]bool{}
	refundsBefore := len(client.refunds)

	result, err = svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Transitioned)
	assert.Len(t, client.refunds, refundsBefore+1)

	after, err = repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusExpired, after.Status)
	assert.Equal(t, 1, repo.auditCount("pool_expired_and_refunded"))
}

func TestSweepPoolsExpiresEmptyPool(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeClient()
	svc := NewService(repo, client, testConfig())
	ctx := context.Background()

	pool, _ := seedSweepPool(t, repo, int64ptr(10000))

	result, err := svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transitioned)

	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusExpired, after.Status)
	assert.Empty(t, client.refunds)
}

func TestSweepPoolsLeavesFutureDeadlinesAlone(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, newFakeClient(), testConfig())
	ctx := context.Background()

	pool, _ := seedSweepPool(t, repo, int64ptr(10000), 3000)
	repo.pools[pool.ID].DeadlineAt = time.Now().Add(time.Hour)

	result, err := svc.SweepPools(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked)

	after, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PoolStatusActive, after.Status)
}
