package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/license-service/internal/config"
	"github.com/spec-kit/license-service/internal/domain"
	"github.com/spec-kit/license-service/internal/keygen"
	"github.com/spec-kit/license-service/internal/repository"
	apperrors "github.com/spec-kit/license-service/pkg/util/errorutil"
)

// memLicenseRepo is an in-memory repository.LicenseRepository matching the
// Postgres adapter's semantics, including the conditional usage increment.
type memLicenseRepo struct {
	mu    sync.Mutex
	byID  map[string]*domain.LicenseKey
	keyID map[string]string
	seq   int
}

func newMemLicenseRepo() *memLicenseRepo {
	return &memLicenseRepo{
		byID:  make(map[string]*domain.LicenseKey),
		keyID: make(map[string]string),
	}
}

func (m *memLicenseRepo) Create(_ context.Context, license *domain.LicenseKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keyID[license.Key]; exists {
		return repository.ErrDuplicateKey
	}
	m.seq++
	license.ID = fmt.Sprintf("lic-%04d", m.seq)
	license.CreatedAt = time.Now()
	license.UpdatedAt = license.CreatedAt
	stored := *license
	m.byID[license.ID] = &stored
	m.keyID[license.Key] = license.ID
	return nil
}

func (m *memLicenseRepo) Update(_ context.Context, license *domain.LicenseKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[license.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	updated := *license
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	m.byID[license.ID] = &updated
	return nil
}

func (m *memLicenseRepo) GetByID(_ context.Context, id string) (*domain.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *stored
	return &cp, nil
}

func (m *memLicenseRepo) GetByKey(_ context.Context, key string) (*domain.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keyID[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memLicenseRepo) ListBySeller(_ context.Context, sellerID string, limit, offset int) ([]domain.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.LicenseKey
	for _, stored := range m.byID {
		if stored.SellerID == sellerID {
			result = append(result, *stored)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memLicenseRepo) IncrementUsage(_ context.Context, id string, expectedCount int, nextStatus *domain.LicenseStatus, userEmail *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok || stored.UsageCount != expectedCount {
		return repository.ErrUsageConflict
	}
	stored.UsageCount++
	if nextStatus != nil {
		stored.Status = *nextStatus
	}
	if stored.UserEmail == nil {
		stored.UserEmail = userEmail
	}
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *memLicenseRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.keyID, stored.Key)
	delete(m.byID, id)
	return nil
}

func newTestService(repo repository.LicenseRepository, opts ...func(*LicenseDependencies)) *LicenseService {
	deps := LicenseDependencies{LicenseRepo: repo}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewLicenseService(config.EngineConfig{KeyRetryLimit: 5, RedeemRetryLimit: 3}, deps)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemLicenseRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App", MaxUsage: intPtr(0)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App", MaxUsage: intPtr(-3)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestCreateDefaultsAndRoundTrip(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	expires := time.Now().Add(30 * 24 * time.Hour)
	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{
		ProductName: "My Software v1.0",
		MaxUsage:    intPtr(3),
		ExpiresAt:   &expires,
		Notes:       strPtr("pilot customer"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())
	assert.True(t, keygen.IsValidFormat(created.Key))
	assert.Equal(t, domain.LicenseStatusActive, created.Status)
	assert.Equal(t, 0, created.UsageCount)

	fetched, err := repo.GetByKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "My Software v1.0", fetched.ProductName)
	assert.Equal(t, "seller-a", fetched.SellerID)
	assert.Equal(t, intPtr(3), fetched.MaxUsage)
	require.NotNil(t, fetched.ExpiresAt)
	assert.True(t, fetched.ExpiresAt.Equal(expires))
	assert.Equal(t, strPtr("pilot customer"), fetched.Notes)
}

func TestCreateRetriesOnKeyCollision(t *testing.T) {
	repo := newMemLicenseRepo()
	keys := []string{"AAAA-AAAA-AAAA-AAAA", "AAAA-AAAA-AAAA-AAAA", "BBBB-BBBB-BBBB-BBBB"}
	calls := 0
	svc := newTestService(repo, func(d *LicenseDependencies) {
		d.Generate = func() string {
			key := keys[calls%len(keys)]
			calls++
			return key
		}
	})
	ctx := context.Background()

	first, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)
	assert.Equal(t, "AAAA-AAAA-AAAA-AAAA", first.Key)

	// Generator repeats the taken key once before producing a fresh one.
	second, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)
	assert.Equal(t, "BBBB-BBBB-BBBB-BBBB", second.Key)
	assert.Equal(t, 3, calls)
}

func TestCreateKeyGenerationExhausted(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo, func(d *LicenseDependencies) {
		d.Generate = func() string { return "CCCC-CCCC-CCCC-CCCC" }
	})
	ctx := context.Background()

	_, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "KEY_GENERATION_EXHAUSTED"))
}

func TestRedeemStateMachine(t *testing.T) {
	ctx := context.Background()

	setup := func(mutate func(*domain.LicenseKey)) (*LicenseService, *domain.LicenseKey) {
		repo := newMemLicenseRepo()
		svc := newTestService(repo)
		created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
		require.NoError(t, err)
		if mutate != nil {
			mutate(created)
			require.NoError(t, repo.Update(ctx, created))
		}
		return svc, created
	}

	t.Run("active unlimited accepts", func(t *testing.T) {
		svc, created := setup(nil)
		result, err := svc.Redeem(ctx, created.Key, RedemptionContext{UserEmail: strPtr("user@example.com")})
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.Equal(t, 1, result.UsageCount)
		require.NotNil(t, result.License.UserEmail)
		assert.Equal(t, "user@example.com", *result.License.UserEmail)
	})

	t.Run("expired by date rejects", func(t *testing.T) {
		svc, created := setup(func(l *domain.LicenseKey) {
			yesterday := time.Now().Add(-24 * time.Hour)
			l.ExpiresAt = &yesterday
		})
		result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectionExpired, result.Reason)
	})

	t.Run("banned rejects", func(t *testing.T) {
		svc, created := setup(func(l *domain.LicenseKey) {
			l.Status = domain.LicenseStatusBanned
		})
		result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectionBanned, result.Reason)
	})

	t.Run("pending rejects", func(t *testing.T) {
		svc, created := setup(func(l *domain.LicenseKey) {
			l.Status = domain.LicenseStatusPending
		})
		result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectionNotYetActive, result.Reason)
	})

	t.Run("unknown key rejects", func(t *testing.T) {
		svc, _ := setup(nil)
		result, err := svc.Redeem(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", RedemptionContext{})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectionNotFound, result.Reason)
	})

	t.Run("malformed key rejects without store lookup", func(t *testing.T) {
		svc, _ := setup(nil)
		result, err := svc.Redeem(ctx, "not-a-key", RedemptionContext{})
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectionNotFound, result.Reason)
	})
}

func TestRedeemQuotaExhaustionFlipsStatus(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App", MaxUsage: intPtr(1)})
	require.NoError(t, err)

	result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	assert.Equal(t, 1, result.UsageCount)

	stored, err := repo.GetByKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusExpired, stored.Status)

	// Second redemption sees the exhausted quota.
	result, err = svc.Redeem(ctx, created.Key, RedemptionContext{})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, []RejectionReason{RejectionExpired, RejectionQuotaExceeded}, result.Reason)
}

func TestRedeemConcurrentSingleSlot(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App", MaxUsage: intPtr(1)})
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
			if err != nil {
				// Conflict retry exhaustion is an allowed loss.
				require.True(t, apperrors.IsCode(err, "CONFLICT"))
				return
			}
			if result.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one redemption may win the single slot")

	stored, err := repo.GetByKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)
	assert.Equal(t, domain.LicenseStatusExpired, stored.Status)
}

func TestRedeemConflictRetriesExhausted(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	// Interfering writer keeps the observed usage count stale.
	conflicting := &conflictingRepo{memLicenseRepo: repo}
	svcConflict := newTestService(conflicting)
	_, err = svcConflict.Redeem(ctx, created.Key, RedemptionContext{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

// conflictingRepo simulates a concurrent writer winning every CAS attempt.
type conflictingRepo struct {
	*memLicenseRepo
}

func (c *conflictingRepo) IncrementUsage(context.Context, string, int, *domain.LicenseStatus, *string) error {
	return repository.ErrUsageConflict
}

func TestSetStatusOwnership(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "seller-b", created.ID, domain.LicenseStatusBanned)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	updated, err := svc.SetStatus(ctx, "seller-a", created.ID, domain.LicenseStatusBanned)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusBanned, updated.Status)

	_, err = svc.SetStatus(ctx, "seller-a", created.ID, domain.LicenseStatus("revoked"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.SetStatus(ctx, "seller-a", "lic-missing", domain.LicenseStatusActive)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestBanOverridesRedeem(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "seller-a", created.ID, domain.LicenseStatusBanned)
	require.NoError(t, err)

	result, err := svc.Redeem(ctx, created.Key, RedemptionContext{})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, RejectionBanned, result.Reason)

	// Unban restores redemption.
	_, err = svc.SetStatus(ctx, "seller-a", created.ID, domain.LicenseStatusActive)
	require.NoError(t, err)
	result, err = svc.Redeem(ctx, created.Key, RedemptionContext{})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestDeleteOwnership(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	err = svc.Delete(ctx, "seller-b", created.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	require.NoError(t, svc.Delete(ctx, "seller-a", created.ID))

	err = svc.Delete(ctx, "seller-a", created.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestUpdateLicense(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: "App"})
	require.NoError(t, err)

	_, err = svc.UpdateLicense(ctx, "seller-a", created.ID, LicenseUpdateInput{MaxUsage: intPtr(0)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.UpdateLicense(ctx, "seller-b", created.ID, LicenseUpdateInput{Notes: strPtr("x")})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	expires := time.Now().Add(48 * time.Hour)
	updated, err := svc.UpdateLicense(ctx, "seller-a", created.ID, LicenseUpdateInput{
		MaxUsage:  intPtr(10),
		ExpiresAt: &expires,
		Notes:     strPtr("renewed"),
	})
	require.NoError(t, err)
	assert.Equal(t, intPtr(10), updated.MaxUsage)
	assert.Equal(t, strPtr("renewed"), updated.Notes)
	require.NotNil(t, updated.ExpiresAt)
}

func TestListForSellerNewestFirst(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "seller-a", LicenseCreateInput{ProductName: fmt.Sprintf("App %d", i)})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "seller-b", LicenseCreateInput{ProductName: "Other"})
	require.NoError(t, err)

	licenses, err := svc.ListForSeller(ctx, "seller-a", 10, 0)
	require.NoError(t, err)
	require.Len(t, licenses, 3)
	for i := 1; i < len(licenses); i++ {
		assert.False(t, licenses[i].CreatedAt.After(licenses[i-1].CreatedAt),
			"expected newest created_at first")
	}
	for _, l := range licenses {
		assert.Equal(t, "seller-a", l.SellerID)
	}
}
