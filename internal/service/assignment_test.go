package service

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"secret-santa-bot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func TestDerange_IsPermutationWithoutFixedPoints(t *testing.T) {
	for n := 3; n <= 25; n++ {
		for seed := int64(1); seed <= 20; seed++ {
			in := ids(n)
			out, attempts, err := Derange(context.Background(), in, rand.New(rand.NewSource(seed)))
			require.NoError(t, err)
			require.GreaterOrEqual(t, attempts, 1)

			for i := range in {
				require.NotEqual(t, in[i], out[i], "n=%d seed=%d position %d maps to itself", n, seed, i)
			}

			sorted := append([]int64(nil), out...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			require.Equal(t, in, sorted, "n=%d seed=%d is not a permutation", n, seed)
		}
	}
}

func TestDerange_DoesNotModifyInput(t *testing.T) {
	in := ids(5)
	_, _, err := Derange(context.Background(), in, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, ids(5), in)
}

func TestDerange_FixedSeedIsDeterministic(t *testing.T) {
	a, attemptsA, err := Derange(context.Background(), ids(8), rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, attemptsB, err := Derange(context.Background(), ids(8), rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, attemptsA, attemptsB)
}

func TestDerange_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Derange(ctx, ids(4), rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDerange_AverageAttemptsNearE(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	total := 0
	const runs = 2000
	for i := 0; i < runs; i++ {
		_, attempts, err := Derange(context.Background(), ids(30), rng)
		require.NoError(t, err)
		total += attempts
	}
	avg := float64(total) / runs
	assert.InDelta(t, 2.718, avg, 0.4)
}

func TestAssignmentEngine_ThreeParticipantsFormACycle(t *testing.T) {
	valid := []map[int64]int64{
		{1: 2, 2: 3, 3: 1},
		{1: 3, 2: 1, 3: 2},
	}

	for seed := int64(1); seed <= 10; seed++ {
		env := newTestEnv(t)
		env.engine.rng = rand.New(rand.NewSource(seed))
		env.join(t, threeFriends())

		_, err := env.engine.Draw(env.ctx, []int64{1, 2, 3})
		require.NoError(t, err)
		assert.Contains(t, valid, env.assignments(t))
	}
}

func TestAssignmentEngine_DrawTwice(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.engine.Draw(env.ctx, ids(4))
	require.NoError(t, err)
	require.Len(t, first, 4)
	before := env.assignments(t)

	_, err = env.engine.Draw(env.ctx, ids(4))
	assert.ErrorIs(t, err, domain.ErrAlreadyDrawn)
	assert.Equal(t, before, env.assignments(t))
}

func TestAssignmentEngine_InsufficientParticipants(t *testing.T) {
	env := newTestEnv(t)

	for _, n := range []int{0, 1, 2} {
		_, err := env.engine.Draw(env.ctx, ids(n))
		assert.ErrorIs(t, err, domain.ErrInsufficientParticipants)
	}
	assert.Empty(t, env.assignments(t))
}

func TestAssignmentEngine_ResetAndResults(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Results(env.ctx)
	assert.ErrorIs(t, err, domain.ErrNoDraw)
	require.NoError(t, env.engine.Reset(env.ctx))

	drawn, err := env.engine.Draw(env.ctx, ids(3))
	require.NoError(t, err)

	results, err := env.engine.Results(env.ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, a := range drawn {
		assert.Equal(t, a.ReceiverID, results[a.GiverID])
	}

	require.NoError(t, env.engine.Reset(env.ctx))
	require.NoError(t, env.engine.Reset(env.ctx))
	_, err = env.engine.Results(env.ctx)
	assert.ErrorIs(t, err, domain.ErrNoDraw)

	_, err = env.engine.Draw(env.ctx, ids(3))
	assert.NoError(t, err)
}

func TestAssignmentEngine_ConcurrentDrawsSucceedOnce(t *testing.T) {
	env := newTestEnv(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Draw(env.ctx, ids(5))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrAlreadyDrawn):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, already)
	assert.Len(t, env.assignments(t), 5)
}
