package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	controller = ledger.Principal("controller-1")
	service    = ledger.Principal("backend-service")
	alice      = ledger.Principal("user-alice")
	bob        = ledger.Principal("user-bob")
	stranger   = ledger.Principal("not-registered")
)

// newTestEngine returns an engine with the service already bootstrapped
// and a deterministic ID source.
func newTestEngine(t *testing.T) *ledger.Engine {
	t.Helper()

	seq := 0
	engine := ledger.NewEngine(store.NewTxMemory(), []ledger.Principal{controller},
		ledger.WithIDSource(func() string {
			seq++
			return fmt.Sprintf("%08d", seq)
		}))

	_, err := engine.RegisterService(context.Background(), controller, service)
	require.NoError(t, err)
	return engine
}

func newUser(t *testing.T, e *ledger.Engine, id ledger.Principal) *ledger.User {
	t.Helper()
	u, err := e.InitializeUser(context.Background(), service, id)
	require.NoError(t, err)
	return u
}

// =============================================================================
// SERVICE BOOTSTRAP
// =============================================================================

func TestRegisterService_Succeeds_ExactlyOnce(t *testing.T) {
	// GIVEN: A fresh store and a controller
	// WHEN: The controller registers a service, then anyone tries again
	// THEN: The first call succeeds; every subsequent call fails

	engine := ledger.NewEngine(store.NewTxMemory(), []ledger.Principal{controller})
	ctx := context.Background()

	svc, err := engine.RegisterService(ctx, controller, service)
	require.NoError(t, err)
	assert.Equal(t, service, svc.ID)

	// Same service again
	_, err = engine.RegisterService(ctx, controller, service)
	assert.Error(t, err)
	assert.True(t, ledger.IsUnauthorized(err) || ledger.IsConflict(err))

	// A different service id is also rejected: the singleton is set
	_, err = engine.RegisterService(ctx, controller, "another-service")
	assert.True(t, ledger.IsUnauthorized(err))
}

func TestRegisterService_NonController_Rejected(t *testing.T) {
	engine := ledger.NewEngine(store.NewTxMemory(), []ledger.Principal{controller})

	_, err := engine.RegisterService(context.Background(), stranger, service)
	assert.True(t, ledger.IsUnauthorized(err))

	// Nothing was registered, so the controller can still bootstrap
	_, err = engine.RegisterService(context.Background(), controller, service)
	assert.NoError(t, err)
}

// =============================================================================
// AUTHORIZATION GUARD
// =============================================================================

func TestAuthorization_UnregisteredCaller_NoMutation(t *testing.T) {
	// GIVEN: A bootstrapped ledger with one funded user
	// WHEN: An unregistered caller invokes every mutating operation
	// THEN: Each fails Unauthorized and the user record is untouched

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(50), "")
	require.NoError(t, err)

	before, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)

	_, err = engine.InitializeUser(ctx, stranger, bob)
	assert.True(t, ledger.IsUnauthorized(err))

	_, err = engine.AddPoints(ctx, stranger, alice, ledger.NewPoints(10), "")
	assert.True(t, ledger.IsUnauthorized(err))

	_, err = engine.RequestRedeem(ctx, stranger, alice, ledger.NewPoints(10), "addr", "")
	assert.True(t, ledger.IsUnauthorized(err))

	_, err = engine.UpdateRedeemStatus(ctx, stranger, alice, "RED-x", ledger.StatusApproved)
	assert.True(t, ledger.IsUnauthorized(err))

	// Reads are gated too
	_, err = engine.GetUser(ctx, stranger, alice)
	assert.True(t, ledger.IsUnauthorized(err))
	_, err = engine.UserTransactions(ctx, stranger, alice)
	assert.True(t, ledger.IsUnauthorized(err))
	_, err = engine.PendingRedeemTransactions(ctx, stranger)
	assert.True(t, ledger.IsUnauthorized(err))
	_, err = engine.PlatformAnalytics(ctx, stranger)
	assert.True(t, ledger.IsUnauthorized(err))

	after, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, before, after, "unauthorized calls must not mutate state")
}

// =============================================================================
// USER LIFECYCLE
// =============================================================================

func TestInitializeUser_StartsAtZero(t *testing.T) {
	engine := newTestEngine(t)

	u := newUser(t, engine, alice)

	assert.Equal(t, alice, u.ID)
	assert.Equal(t, "0", u.TotalPoints.String())
	assert.Equal(t, "0", u.AvailablePoints.String())
	assert.Equal(t, "0", u.TotalRedeemed.String())
	assert.Empty(t, u.Transactions)
}

func TestInitializeUser_Duplicate_Conflict(t *testing.T) {
	engine := newTestEngine(t)
	newUser(t, engine, alice)

	_, err := engine.InitializeUser(context.Background(), service, alice)
	assert.True(t, ledger.IsConflict(err))
}

func TestGetUser_Missing_NotFound(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.GetUser(context.Background(), service, alice)
	assert.True(t, ledger.IsNotFound(err))
}

func TestUserTransactions_UnknownUser_EmptyNotError(t *testing.T) {
	// GIVEN: A principal that was never initialized
	// WHEN: Asking for its transaction history
	// THEN: The history is vacuously empty, not an error

	engine := newTestEngine(t)

	txs, err := engine.UserTransactions(context.Background(), service, "never-seen")
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

// =============================================================================
// EARNING
// =============================================================================

func TestAddPoints_CreditsBothBalances(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)

	u, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "signup bonus")
	require.NoError(t, err)

	assert.Equal(t, "100", u.TotalPoints.String())
	assert.Equal(t, "100", u.AvailablePoints.String())
	assert.Equal(t, "0", u.TotalRedeemed.String())

	require.Len(t, u.Transactions, 1)
	tx := u.Transactions[0]
	assert.Equal(t, ledger.TxEarning, tx.Type)
	assert.Equal(t, ledger.StatusCompleted, tx.Status, "earning is final at creation")
	assert.Equal(t, "100", tx.Amount.String())
	assert.Equal(t, "signup bonus", tx.Description)
	assert.Empty(t, tx.Address)
	assert.Contains(t, tx.ID, "EARN-")
}

func TestAddPoints_DefaultDescription(t *testing.T) {
	engine := newTestEngine(t)
	newUser(t, engine, alice)

	u, err := engine.AddPoints(context.Background(), service, alice, ledger.NewPoints(5), "")
	require.NoError(t, err)
	assert.Equal(t, "Points earned", u.Transactions[0].Description)
}

func TestAddPoints_NonPositiveAmount_Rejected(t *testing.T) {
	engine := newTestEngine(t)
	newUser(t, engine, alice)

	_, err := engine.AddPoints(context.Background(), service, alice, ledger.ZeroPoints, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload)
}

func TestAddPoints_UnknownUser_NotFound(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.AddPoints(context.Background(), service, alice, ledger.NewPoints(10), "")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// REDEMPTION REQUEST - Pre-booking
// =============================================================================

func TestRequestRedeem_PreBooksDebit(t *testing.T) {
	// GIVEN: Alice has 100 available points
	// WHEN: She requests to redeem 40
	// THEN: Available drops to 60 and TotalRedeemed rises to 40 immediately,
	//       while the transaction sits PENDING

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "")
	require.NoError(t, err)

	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "cashout")
	require.NoError(t, err)

	assert.Equal(t, ledger.TxRedeem, tx.Type)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Equal(t, "40", tx.Amount.String())
	assert.Equal(t, "addr1", tx.Address)
	assert.Contains(t, tx.ID, "RED-")

	u, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, "100", u.TotalPoints.String())
	assert.Equal(t, "60", u.AvailablePoints.String())
	assert.Equal(t, "40", u.TotalRedeemed.String())
}

func TestRequestRedeem_Insufficient_UserUnchanged(t *testing.T) {
	// GIVEN: Alice has 30 available points
	// WHEN: She requests to redeem 31
	// THEN: InvalidPayload, and her record is byte-for-byte unchanged

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(30), "")
	require.NoError(t, err)

	before, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)

	_, err = engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(31), "addr1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload)

	var insErr *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "30", insErr.Available.String())
	assert.Equal(t, "31", insErr.Requested.String())

	after, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRequestRedeem_DoubleSpend_PreventedAcrossPendingRequests(t *testing.T) {
	// GIVEN: Alice has 50 points and a pending redemption of 40
	// WHEN: A second redemption of 40 is requested before the first resolves
	// THEN: The second fails; the pre-booked debit already removed the points

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(50), "")
	require.NoError(t, err)

	_, err = engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "")
	require.NoError(t, err)

	_, err = engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr2", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload)
}

func TestRequestRedeem_Validation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)

	_, err := engine.RequestRedeem(ctx, service, alice, ledger.ZeroPoints, "addr1", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload, "zero amount")

	_, err = engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(10), "", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload, "missing payout address")

	_, err = engine.RequestRedeem(ctx, service, bob, ledger.NewPoints(10), "addr1", "")
	assert.True(t, ledger.IsNotFound(err), "unknown user")
}

// =============================================================================
// REDEMPTION RESOLUTION - State machine
// =============================================================================

func TestUpdateRedeemStatus_Declined_RestoresBalances(t *testing.T) {
	// GIVEN: Alice earned 100 and has a pending redemption of 40
	// WHEN: The redemption is declined
	// THEN: Available returns to 100, TotalRedeemed to 0, tx ends DECLINED

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "bonus")
	require.NoError(t, err)

	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "cashout")
	require.NoError(t, err)

	resolved, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDeclined, resolved.Status)

	u, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, "100", u.AvailablePoints.String())
	assert.Equal(t, "0", u.TotalRedeemed.String())
	assert.Equal(t, "100", u.TotalPoints.String())
}

func TestUpdateRedeemStatus_Approved_LeavesBalances(t *testing.T) {
	// GIVEN: A pending redemption of 40 out of 100
	// WHEN: The redemption is approved
	// THEN: Balances keep their post-request values; tx ends APPROVED

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "")
	require.NoError(t, err)

	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "")
	require.NoError(t, err)

	resolved, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, resolved.Status)

	u, err := engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, "60", u.AvailablePoints.String())
	assert.Equal(t, "40", u.TotalRedeemed.String())
}

func TestUpdateRedeemStatus_TerminalStates_CannotMoveAgain(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "")
	require.NoError(t, err)

	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "")
	require.NoError(t, err)
	_, err = engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusApproved)
	require.NoError(t, err)

	_, err = engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusDeclined)
	require.Error(t, err)

	var trErr *ledger.TransitionError
	assert.ErrorAs(t, err, &trErr)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload)
}

func TestUpdateRedeemStatus_EarningTransaction_Rejected(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	u, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "")
	require.NoError(t, err)

	earnID := u.Transactions[0].ID
	_, err = engine.UpdateRedeemStatus(ctx, service, alice, earnID, ledger.StatusApproved)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayload)
}

func TestUpdateRedeemStatus_IllegalTargetStatus_Rejected(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)
	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "")
	require.NoError(t, err)
	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(10), "addr1", "")
	require.NoError(t, err)

	for _, target := range []ledger.TransactionStatus{
		ledger.StatusPending, ledger.StatusCompleted, ledger.StatusFailed, "garbage",
	} {
		_, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, target)
		assert.ErrorIs(t, err, ledger.ErrInvalidPayload, "target %s", target)
	}

	// The transaction is still pending and resolvable
	resolved, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDeclined, resolved.Status)
}

func TestUpdateRedeemStatus_UnknownTransaction_NotFound(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)

	_, err := engine.UpdateRedeemStatus(ctx, service, alice, "RED-missing", ledger.StatusApproved)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// INVARIANTS & SCENARIO
// =============================================================================

func TestScenario_EarnRedeemDecline(t *testing.T) {
	// The canonical walkthrough: earn 100, redeem 40, decline.

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)

	u, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(100), "bonus")
	require.NoError(t, err)
	assert.Equal(t, "100", u.TotalPoints.String())
	assert.Equal(t, "100", u.AvailablePoints.String())

	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "addr1", "cashout")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)

	u, err = engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, "60", u.AvailablePoints.String())
	assert.Equal(t, "40", u.TotalRedeemed.String())

	resolved, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDeclined, resolved.Status)

	u, err = engine.GetUser(ctx, service, alice)
	require.NoError(t, err)
	assert.Equal(t, "100", u.AvailablePoints.String())
	assert.Equal(t, "0", u.TotalRedeemed.String())

	// History keeps both transactions; the redemption is DECLINED in place
	require.Len(t, u.Transactions, 2)
	assert.Equal(t, ledger.StatusCompleted, u.Transactions[0].Status)
	assert.Equal(t, ledger.StatusDeclined, u.Transactions[1].Status)
}

func TestBalanceInvariant_HoldsThroughMixedActivity(t *testing.T) {
	// For all users at all times: available >= 0 and total >= available.

	engine := newTestEngine(t)
	ctx := context.Background()
	newUser(t, engine, alice)

	check := func() {
		u, err := engine.GetUser(ctx, service, alice)
		require.NoError(t, err)
		assert.False(t, u.AvailablePoints.IsNegative())
		assert.False(t, u.TotalPoints.LessThan(u.AvailablePoints))
	}

	_, err := engine.AddPoints(ctx, service, alice, ledger.NewPoints(70), "")
	require.NoError(t, err)
	check()

	tx1, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(30), "a", "")
	require.NoError(t, err)
	check()

	tx2, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(40), "b", "")
	require.NoError(t, err)
	check()

	_, err = engine.UpdateRedeemStatus(ctx, service, alice, tx1.ID, ledger.StatusDeclined)
	require.NoError(t, err)
	check()

	_, err = engine.UpdateRedeemStatus(ctx, service, alice, tx2.ID, ledger.StatusApproved)
	require.NoError(t, err)
	check()

	_, err = engine.AddPoints(ctx, service, alice, ledger.NewPoints(5), "")
	require.NoError(t, err)
	check()
}

func TestTimestamps_RefreshOnMutation(t *testing.T) {
	// GIVEN: A clock under test control
	// WHEN: Operations happen at successive instants
	// THEN: UpdatedAt follows the clock, CreatedAt does not move

	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	engine := ledger.NewEngine(store.NewTxMemory(), []ledger.Principal{controller},
		ledger.WithClock(clock))
	ctx := context.Background()
	_, err := engine.RegisterService(ctx, controller, service)
	require.NoError(t, err)

	u, err := engine.InitializeUser(ctx, service, alice)
	require.NoError(t, err)
	created := u.CreatedAt
	assert.Equal(t, now, created)

	now = now.Add(time.Hour)
	u, err = engine.AddPoints(ctx, service, alice, ledger.NewPoints(10), "")
	require.NoError(t, err)
	assert.Equal(t, created, u.CreatedAt)
	assert.Equal(t, now, u.UpdatedAt)

	now = now.Add(time.Hour)
	tx, err := engine.RequestRedeem(ctx, service, alice, ledger.NewPoints(5), "addr", "")
	require.NoError(t, err)
	assert.Equal(t, now, tx.CreatedAt)

	now = now.Add(time.Hour)
	resolved, err := engine.UpdateRedeemStatus(ctx, service, alice, tx.ID, ledger.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, now, resolved.UpdatedAt)
	assert.Equal(t, tx.CreatedAt, resolved.CreatedAt)
}
