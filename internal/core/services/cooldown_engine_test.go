package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roombot/internal/core/domain"
	apperrors "roombot/pkg/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingObserver struct {
	mu  sync.Mutex
	got []domain.Admission
}

func (r *recordingObserver) ObserveCooldown(_ string, adm domain.Admission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, adm)
}

func newTestEngine(t *testing.T) (*CooldownEngine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewCooldownEngine(zaptest.NewLogger(t).Sugar(), WithCooldownClock(clock.Now)), clock
}

func check(t *testing.T, e *CooldownEngine, typeID, user string, bypass bool) domain.Admission {
	t.Helper()
	adm, err := e.Check(domain.CooldownRequest{Type: typeID, User: user, ModBypass: bypass})
	require.NoError(t, err)
	return adm
}

func TestCooldown_PersonalSince(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "roll",
		Personal: domain.Since(3 * time.Second),
		Shared:   domain.Since(50 * time.Millisecond),
	}))

	// First use for a fresh user always passes.
	assert.True(t, check(t, e, "roll", "alice", false).Admitted)

	clock.Advance(time.Second)
	adm := check(t, e, "roll", "alice", false)
	assert.False(t, adm.Admitted)
	assert.Equal(t, domain.ScopePersonal, adm.Scope)
	assert.Equal(t, "personal", adm.Reason())
	assert.Equal(t, 2*time.Second, adm.RetryAfter)

	// Other users are independent.
	assert.True(t, check(t, e, "roll", "bob", false).Admitted)

	clock.Advance(2 * time.Second)
	assert.True(t, check(t, e, "roll", "ALICE", false).Admitted)
}

func TestCooldown_SharedSince(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "skip",
		Personal: domain.Since(50 * time.Millisecond),
		Shared:   domain.Since(10 * time.Second),
	}))

	// Seeded as already elapsed.
	assert.True(t, check(t, e, "skip", "alice", false).Admitted)

	clock.Advance(5 * time.Second)
	adm := check(t, e, "skip", "bob", false)
	assert.False(t, adm.Admitted)
	assert.Equal(t, domain.ScopeShared, adm.Scope)
	assert.Equal(t, 5*time.Second, adm.RetryAfter)

	clock.Advance(5 * time.Second)
	assert.True(t, check(t, e, "skip", "bob", false).Admitted)
}

func TestCooldown_SharedCheckedBeforePersonal(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "both",
		Personal: domain.Since(time.Minute),
		Shared:   domain.Since(time.Minute),
	}))

	require.True(t, check(t, e, "both", "alice", false).Admitted)
	clock.Advance(time.Second)

	adm := check(t, e, "both", "alice", false)
	assert.Equal(t, domain.ScopeShared, adm.Scope)
}

func TestCooldown_RejectionCommitsNothing(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "add",
		Personal: domain.Since(10 * time.Second),
		Shared:   domain.Limiter(2, "minute"),
	}))
	clock.Advance(-clock.Now().Sub(clock.Now().Truncate(time.Minute)))

	require.True(t, check(t, e, "add", "alice", false).Admitted)
	// alice is personally throttled; the shared budget must not be consumed.
	for i := 0; i < 5; i++ {
		adm := check(t, e, "add", "alice", false)
		require.False(t, adm.Admitted)
		require.Equal(t, domain.ScopePersonal, adm.Scope)
	}
	assert.True(t, check(t, e, "add", "bob", false).Admitted)

	adm := check(t, e, "add", "carol", false)
	assert.False(t, adm.Admitted)
	assert.Equal(t, domain.ScopeShared, adm.Scope)
	assert.Equal(t, time.Minute, adm.RetryAfter)

	// A shared rejection must not mark carol as having used the command.
	clock.Advance(time.Minute)
	assert.True(t, check(t, e, "add", "carol", false).Admitted)
}

func TestCooldown_BypassNeverMutates(t *testing.T) {
	run := func(bypassed int) domain.Admission {
		e, _ := newTestEngine(t)
		require.NoError(t, e.Register(domain.CooldownDefinition{
			TypeID:   "roll",
			Personal: domain.Since(time.Hour),
			Shared:   domain.Bucket(1, time.Hour),
		}))
		for i := 0; i < bypassed; i++ {
			adm := check(t, e, "roll", "mod", true)
			require.True(t, adm.Admitted)
			require.True(t, adm.Bypassed)
		}
		return check(t, e, "roll", "mod", false)
	}

	assert.Equal(t, run(0), run(25))
	assert.True(t, run(25).Admitted)
}

func TestCooldown_Bucket(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "roll",
		Personal: domain.Since(50 * time.Millisecond),
		Shared:   domain.Bucket(3, 2*time.Second),
	}))

	users := []string{"a", "b", "c"}
	for _, u := range users {
		assert.True(t, check(t, e, "roll", u, false).Admitted, u)
	}
	adm := check(t, e, "roll", "d", false)
	assert.False(t, adm.Admitted)
	assert.Equal(t, domain.ScopeShared, adm.Scope)
	assert.Equal(t, 2*time.Second, adm.RetryAfter)

	clock.Advance(2 * time.Second)
	assert.True(t, check(t, e, "roll", "d", false).Admitted)
	assert.False(t, check(t, e, "roll", "e", false).Admitted)
}

func TestCooldown_LimiterWindowResets(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "add",
		Personal: domain.Since(50 * time.Millisecond),
		Shared:   domain.Limiter(1, "hour"),
	}))

	assert.True(t, check(t, e, "add", "a", false).Admitted)
	clock.Advance(59 * time.Minute)
	assert.False(t, check(t, e, "add", "b", false).Admitted)
	clock.Advance(time.Minute)
	assert.True(t, check(t, e, "add", "b", false).Admitted)
}

func TestCooldown_RegisterFaults(t *testing.T) {
	valid := domain.CooldownDefinition{TypeID: "roll", Personal: domain.Since(time.Second), Shared: domain.Since(time.Second)}

	cases := []struct {
		name   string
		mutate func(*domain.CooldownDefinition)
	}{
		{"since below minimum", func(d *domain.CooldownDefinition) { d.Personal = domain.Since(49 * time.Millisecond) }},
		{"shared since below minimum", func(d *domain.CooldownDefinition) { d.Shared = domain.Since(time.Millisecond) }},
		{"personal must be since", func(d *domain.CooldownDefinition) { d.Personal = domain.Bucket(1, time.Second) }},
		{"unknown strategy", func(d *domain.CooldownDefinition) { d.Shared = domain.StrategySpec{Kind: "leaky"} }},
		{"bucket capacity", func(d *domain.CooldownDefinition) { d.Shared = domain.Bucket(0, time.Second) }},
		{"bucket refill", func(d *domain.CooldownDefinition) { d.Shared = domain.Bucket(1, time.Millisecond) }},
		{"limiter count", func(d *domain.CooldownDefinition) { d.Shared = domain.Limiter(0, "day") }},
		{"limiter unit", func(d *domain.CooldownDefinition) { d.Shared = domain.Limiter(5, "fortnight") }},
		{"bad id", func(d *domain.CooldownDefinition) { d.TypeID = "Has Spaces" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			def := valid
			tc.mutate(&def)
			err := e.Register(def)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigFault(err), "expected config fault, got %v", err)
		})
	}
}

func TestCooldown_DuplicateRegistrationIsConfigFault(t *testing.T) {
	e, _ := newTestEngine(t)
	def := domain.CooldownDefinition{TypeID: "roll", Personal: domain.Since(time.Second), Shared: domain.Since(time.Second)}

	require.NoError(t, e.Register(def))
	err := e.Register(def)
	assert.True(t, apperrors.IsConfigFault(err))
	assert.ErrorIs(t, err, domain.ErrDuplicateCooldown)
}

func TestCooldown_CheckErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Check(domain.CooldownRequest{Type: "nope", User: "alice"})
	assert.ErrorIs(t, err, domain.ErrUnknownCooldown)

	require.NoError(t, e.Register(domain.CooldownDefinition{TypeID: "roll", Personal: domain.Since(time.Second), Shared: domain.Since(time.Second)}))
	_, err = e.Check(domain.CooldownRequest{Type: "roll"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContract))
}

func TestCooldown_DefinitionsAndPrune(t *testing.T) {
	e, clock := newTestEngine(t)
	require.NoError(t, e.Register(domain.CooldownDefinition{TypeID: "skip", Personal: domain.Since(time.Second), Shared: domain.Since(time.Second)}))
	require.NoError(t, e.Register(domain.CooldownDefinition{TypeID: "add", DisplayName: "Queue", Personal: domain.Since(time.Minute), Shared: domain.Limiter(5, "day")}))

	defs := e.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "add", defs[0].TypeID)
	assert.Equal(t, "skip", defs[1].DisplayName)

	check(t, e, "skip", "alice", false)
	check(t, e, "add", "alice", false)

	clock.Advance(2 * time.Second)
	// skip: alice + shared entry elapsed; add: alice still within its minute.
	assert.Equal(t, 2, e.Prune())
	assert.False(t, check(t, e, "add", "alice", false).Admitted)
	assert.True(t, check(t, e, "skip", "alice", false).Admitted)
}

func TestCooldown_ObserverAndConcurrency(t *testing.T) {
	obs := &recordingObserver{}
	clock := newFakeClock()
	e := NewCooldownEngine(zaptest.NewLogger(t).Sugar(), WithCooldownClock(clock.Now), WithCooldownObserver(obs))
	require.NoError(t, e.Register(domain.CooldownDefinition{
		TypeID:   "roll",
		Personal: domain.Since(time.Minute),
		Shared:   domain.Bucket(10, time.Hour),
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adm, err := e.Check(domain.CooldownRequest{Type: "roll", User: string(rune('a' + i%26))})
			if err == nil && adm.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	assert.Len(t, obs.got, 50)
}
