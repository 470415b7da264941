package signature

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantgate/pkg/kv"
	"tenantgate/pkg/problems"
	"tenantgate/pkg/replay"
	"tenantgate/pkg/secrets"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *kv.MemoryStore
	secrets *secrets.Manager
	v       *Validator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := kv.NewMemoryStore().WithClock(func() time.Time { return now })
	guard := replay.NewGuard(store, 300*time.Second).WithClock(func() time.Time { return now })
	mgr := secrets.NewManager(secrets.NewMemoryStore(), "", zap.NewNop().Sugar())
	return fixture{store: store, secrets: mgr, v: NewValidator(guard, mgr, zap.NewNop().Sugar())}
}

func TestGenerate_Deterministic(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		Generate([]byte("what do ya want for nothing?"), "Jefe"))
	assert.Equal(t, Generate([]byte("x"), "k"), Generate([]byte("x"), "k"))
	assert.Equal(t, "tsnbody", string(Payload("ts", "n", []byte("body"))))
}

func TestValidateEnhanced_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sec, err := f.secrets.Rotate(ctx, "acme", "")
	require.NoError(t, err)

	ts := now.Format(time.RFC3339)
	body := []byte(`{"amount":10}`)
	sig := Sign(ts, "n-1", body, sec.Value)
	require.NoError(t, f.v.ValidateEnhanced(ctx, body, sig, "acme", ts, "n-1"))

	err = f.v.ValidateEnhanced(ctx, body, sig, "acme", ts, "n-1")
	assert.True(t, problems.IsKind(err, problems.ReplayDetected), "got %v", err)
}

func TestValidateEnhanced_StaleTimestampLeavesNonceUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sec, err := f.secrets.Rotate(ctx, "acme", "")
	require.NoError(t, err)

	stale := now.Add(-400 * time.Second).Format(time.RFC3339)
	body := []byte("{}")
	err = f.v.ValidateEnhanced(ctx, body, Sign(stale, "n-stale", body, sec.Value), "acme", stale, "n-stale")
	assert.True(t, problems.IsKind(err, problems.ReplayDetected))

	_, err = f.store.Get(ctx, "nonce:acme:n-stale")
	assert.ErrorIs(t, err, kv.ErrNotFound, "nonce must not be recorded for a stale request")
}

func TestValidateEnhanced_Mismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sec, err := f.secrets.Rotate(ctx, "acme", "")
	require.NoError(t, err)
	ts := now.Format(time.RFC3339)

	err = f.v.ValidateEnhanced(ctx, []byte("tampered"), Sign(ts, "n-2", []byte("original"), sec.Value), "acme", ts, "n-2")
	assert.True(t, problems.IsKind(err, problems.InvalidSignature))

	err = f.v.ValidateEnhanced(ctx, []byte("x"), "abc", "acme", ts, "n-3")
	assert.True(t, problems.IsKind(err, problems.InvalidSignature), "short signature")

	err = f.v.ValidateEnhanced(ctx, []byte("x"), "", "acme", ts, "n-4")
	assert.True(t, problems.IsKind(err, problems.InvalidSignature))
}

func TestValidateEnhanced_Rotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old, err := f.secrets.Rotate(ctx, "acme", "v1")
	require.NoError(t, err)
	fresh, err := f.secrets.Rotate(ctx, "acme", "v2")
	require.NoError(t, err)

	ts := now.Format(time.RFC3339)
	body := []byte("payload")
	err = f.v.ValidateEnhanced(ctx, body, Sign(ts, "old", body, old.Value), "acme", ts, "old")
	assert.True(t, problems.IsKind(err, problems.InvalidSignature))
	assert.NoError(t, f.v.ValidateEnhanced(ctx, body, Sign(ts, "new", body, fresh.Value), "acme", ts, "new"))
}

func TestValidateEnhanced_ConcurrentReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sec, err := f.secrets.Rotate(ctx, "acme", "")
	require.NoError(t, err)
	ts := now.Format(time.RFC3339)
	body := []byte("same")
	sig := Sign(ts, "dup", body, sec.Value)

	var ok, replayed int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.v.ValidateEnhanced(ctx, body, sig, "acme", ts, "dup")
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case problems.IsKind(err, problems.ReplayDetected):
				atomic.AddInt32(&replayed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(1), replayed)
}
