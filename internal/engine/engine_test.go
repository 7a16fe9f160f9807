package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recountlabs/recount/internal/ai"
	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
	"github.com/recountlabs/recount/internal/storage"
)

// stubExplainer is a canned Explainer for engine tests.
type stubExplainer struct {
	result ai.Explanation
	err    error
	calls  int
}

func (s *stubExplainer) Generate(_ context.Context, _ ai.Context) (ai.Explanation, error) {
	s.calls++
	if s.err != nil {
		return ai.Explanation{}, s.err
	}
	return s.result, nil
}

type fixture struct {
	store  *storage.SQLiteStorage
	tenant *model.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	tenant, err := store.CreateTenant(ctx, "acme")
	require.NoError(t, err)

	return &fixture{store: store, tenant: tenant}
}

func (f *fixture) addInvoice(t *testing.T, number string, amount int64, issueDate time.Time) *model.Invoice {
	t.Helper()
	invoice, err := f.store.CreateInvoice(context.Background(), &model.Invoice{
		TenantID:      f.tenant.ID,
		InvoiceNumber: number,
		VendorName:    "Acme Corp",
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Status:        model.InvoiceStatusOpen,
		IssueDate:     &issueDate,
	})
	require.NoError(t, err)
	return invoice
}

func (f *fixture) addTransaction(t *testing.T, externalID, description string, amount int64, postedAt time.Time) *model.BankTransaction {
	t.Helper()
	txn, err := f.store.CreateTransaction(context.Background(), &model.BankTransaction{
		TenantID:    f.tenant.ID,
		ExternalID:  externalID,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "USD",
		Description: description,
		PostedAt:    postedAt,
	})
	require.NoError(t, err)
	return txn
}

func TestReconcileProposesRankedCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addInvoice(t, "INV-002", 500, issue)

	// Strong candidate for INV-001: amount, date and number reference.
	f.addTransaction(t, "BK-1", "ACH payment INV-001", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))
	// Weak candidate for INV-002: amount only, far date.
	f.addTransaction(t, "BK-2", "wire", 500,
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	// No candidate: amount matches nothing.
	f.addTransaction(t, "BK-3", "misc", 77,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)

	// Two pairs score positive; the zero-score pairs are never persisted.
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Returned)

	// Ranked best-first. 50+20+25=95 beats 50.
	best := result.Candidates[0]
	assert.True(t, best.Score.Equal(decimal.NewFromInt(95)), "best score = %s", best.Score)
	assert.Equal(t, "Exact amount match (+50) | Date within 3 days (+20) | Invoice number found in description (+25)", best.Reason)
	assert.True(t, result.Candidates[1].Score.Equal(decimal.NewFromInt(50)))
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "payment", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	first, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, first.Candidates, 1)
	originalID := first.Candidates[0].ID
	originalScore := first.Candidates[0].Score

	// Unchanged data: the same run produces the same persisted state.
	second, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, second.Candidates, 1)
	assert.Equal(t, originalID, second.Candidates[0].ID)
	assert.True(t, second.Candidates[0].Score.Equal(originalScore))
	assert.Equal(t, 1, second.Total)
}

func TestReconcileMinScoreFiltersShownNotTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addInvoice(t, "INV-002", 700, issue)

	// 95 for INV-001, 50 for INV-002.
	f.addTransaction(t, "BK-1", "INV-001 remittance", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))
	f.addTransaction(t, "BK-2", "wire", 700,
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.NewFromInt(60))
	require.NoError(t, err)

	assert.Len(t, result.Candidates, 1)
	assert.Equal(t, 2, result.Total, "total counts every proposed match, filtered or not")
}

func TestReconcileSkipsMatchedInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "payment", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	first, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, first.Candidates, 1)

	_, err = engine.ConfirmMatch(ctx, first.Candidates[0].ID, f.tenant.ID)
	require.NoError(t, err)

	// A matched invoice generates no further proposals even against new
	// transactions.
	f.addTransaction(t, "BK-2", "another payment", 1200,
		time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC))

	second, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	assert.Empty(t, second.Candidates)
	assert.Equal(t, 0, second.Total)
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	_, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = engine.Reconcile(ctx, 999, 10, decimal.Zero)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReconcileEmptyTenant(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)

	result, err := engine.Reconcile(context.Background(), f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	assert.NotNil(t, result.Candidates)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 0, result.Total)
}

func TestConfirmMatchCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	invoice := f.addInvoice(t, "INV-001", 1200, issue)

	// Three competing transactions for the same invoice amount.
	for i := 1; i <= 3; i++ {
		f.addTransaction(t, fmt.Sprintf("BK-%d", i), "payment", 1200,
			time.Date(2024, time.January, 15+i, 0, 0, 0, 0, time.UTC))
	}

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)

	winner := result.Candidates[0]
	confirmed, err := engine.ConfirmMatch(ctx, winner.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	// Invoice flipped to matched with the back-reference.
	got, err := f.store.GetInvoice(ctx, invoice.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusMatched, got.Status)
	require.NotNil(t, got.MatchedTransactionID)
	assert.Equal(t, confirmed.TransactionID, *got.MatchedTransactionID)

	// Every sibling proposal was rejected.
	rejected, err := f.store.GetMatchesByInvoice(ctx, invoice.ID, f.tenant.ID, model.MatchStatusRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 2)

	proposed, err := f.store.GetMatchesByInvoice(ctx, invoice.ID, f.tenant.ID, model.MatchStatusProposed)
	require.NoError(t, err)
	assert.Empty(t, proposed)
}

func TestConfirmMatchAgainIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "payment", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	first, err := engine.ConfirmMatch(ctx, result.Candidates[0].ID, f.tenant.ID)
	require.NoError(t, err)

	// Re-confirming the winner returns it unchanged rather than erroring.
	second, err := engine.ConfirmMatch(ctx, result.Candidates[0].ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.MatchStatusConfirmed, second.Status)
	require.NotNil(t, second.ConfirmedAt)
	assert.Equal(t, first.ConfirmedAt.Unix(), second.ConfirmedAt.Unix())
}

func TestConfirmMatchConflictsWithExistingWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	invoice := f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "payment", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))
	f.addTransaction(t, "BK-2", "payment", 1200,
		time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	winner, err := engine.ConfirmMatch(ctx, result.Candidates[0].ID, f.tenant.ID)
	require.NoError(t, err)

	// The loser was auto-rejected by the cascade; confirming it must fail
	// and name the winning transaction.
	loser := result.Candidates[1]
	_, err = engine.ConfirmMatch(ctx, loser.ID, f.tenant.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), fmt.Sprintf("transaction %d", winner.TransactionID))

	// State unchanged: the invoice still points at the winner.
	got, err := f.store.GetInvoice(ctx, invoice.ID, f.tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MatchedTransactionID)
	assert.Equal(t, winner.TransactionID, *got.MatchedTransactionID)
}

func TestConfirmMatchNotFound(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)

	_, err := engine.ConfirmMatch(context.Background(), 999, f.tenant.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConfirmMatchWrongTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "payment", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	other, err := f.store.CreateTenant(ctx, "globex")
	require.NoError(t, err)

	_, err = engine.ConfirmMatch(ctx, result.Candidates[0].ID, other.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func proposeSingleMatch(t *testing.T, f *fixture, engine *Engine) *model.Match {
	t.Helper()
	ctx := context.Background()

	issue := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	f.addInvoice(t, "INV-001", 1200, issue)
	f.addTransaction(t, "BK-1", "ACH payment INV-001", 1200,
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	result, err := engine.Reconcile(ctx, f.tenant.ID, 10, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	return &result.Candidates[0]
}

func TestExplainMatchHeuristicWithoutExplainer(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)
	match := proposeSingleMatch(t, f, engine)

	explanation, err := engine.ExplainMatch(context.Background(), match.ID, f.tenant.ID)
	require.NoError(t, err)

	assert.Equal(t, SourceHeuristic, explanation.Source)
	assert.Equal(t, match.Reason, explanation.HeuristicReason)
	assert.True(t, explanation.HeuristicScore.Equal(match.Score))
	assert.Nil(t, explanation.AIExplanation)
	assert.Nil(t, explanation.AIErrorMessage)
}

func TestExplainMatchUsesAI(t *testing.T) {
	f := newFixture(t)
	stub := &stubExplainer{result: ai.Explanation{
		Explanation: "The amounts and dates line up and the memo references the invoice number.",
		Confidence:  92,
	}}
	engine := New(f.store, stub)
	match := proposeSingleMatch(t, f, engine)

	explanation, err := engine.ExplainMatch(context.Background(), match.ID, f.tenant.ID)
	require.NoError(t, err)

	assert.Equal(t, SourceAI, explanation.Source)
	require.NotNil(t, explanation.AIExplanation)
	assert.Contains(t, *explanation.AIExplanation, "memo references")
	require.NotNil(t, explanation.AIConfidence)
	assert.Equal(t, 92, *explanation.AIConfidence)
	// The heuristic audit trail is always present.
	assert.Equal(t, match.Reason, explanation.HeuristicReason)
	assert.Equal(t, 1, stub.calls)
}

func TestExplainMatchFallsBackOnAIError(t *testing.T) {
	f := newFixture(t)
	stub := &stubExplainer{err: errors.New("upstream timeout")}
	engine := New(f.store, stub)
	match := proposeSingleMatch(t, f, engine)

	explanation, err := engine.ExplainMatch(context.Background(), match.ID, f.tenant.ID)
	require.NoError(t, err, "enrichment failure must not surface as an error")

	assert.Equal(t, SourceFallback, explanation.Source)
	assert.Nil(t, explanation.AIExplanation)
	require.NotNil(t, explanation.AIErrorMessage)
	assert.Contains(t, *explanation.AIErrorMessage, "upstream timeout")
	assert.Equal(t, match.Reason, explanation.HeuristicReason)
}

func TestExplainMatchDisabledExplainerIsHeuristic(t *testing.T) {
	f := newFixture(t)
	stub := &stubExplainer{err: common.ErrExplainerDisabled}
	engine := New(f.store, stub)
	match := proposeSingleMatch(t, f, engine)

	explanation, err := engine.ExplainMatch(context.Background(), match.ID, f.tenant.ID)
	require.NoError(t, err)

	// Disabled enrichment is not a failure: no error metadata.
	assert.Equal(t, SourceHeuristic, explanation.Source)
	assert.Nil(t, explanation.AIErrorMessage)
}

func TestExplainMatchNotFound(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)

	_, err := engine.ExplainMatch(context.Background(), 999, f.tenant.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
