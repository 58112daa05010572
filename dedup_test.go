package boostgram

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/model"
)

func TestDeduplicateTargetsKeepsDistinctPosts(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	targets := []model.Target{
		{Link: "https://instagram.com/p/Caaa111"},
		{Link: "https://instagram.com/p/Cbbb222"},
		{Code: "Cccc333"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicateTargetsCollapsesEquivalentLinks(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	// The same post in three disguises: raw URL, tracking-param URL and bare
	// shortcode. One audit row per dropped duplicate.
	mock.ExpectExec("INSERT INTO duplicate_posts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO duplicate_posts").WillReturnResult(sqlmock.NewResult(1, 1))

	targets := []model.Target{
		{Link: "https://www.instagram.com/p/Caaa111/"},
		{Link: "https://instagram.com/p/Caaa111?igsh=abc123"},
		{Code: "Caaa111"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 1)
	assert.Equal(t, "https://www.instagram.com/p/Caaa111/", unique[0].Link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicateTargetsMatchesOnAnyChannel(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO duplicate_posts").WillReturnResult(sqlmock.NewResult(1, 1))

	// Different links, same media id.
	targets := []model.Target{
		{ID: "17900000001", Link: "https://instagram.com/p/Caaa111"},
		{ID: "17900000001", Link: "https://instagram.com/p/Cbbb222"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 1)
	assert.Equal(t, "https://instagram.com/p/Caaa111", unique[0].Link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicateTargetsPreservesFirstSeenOrder(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO duplicate_posts").WillReturnResult(sqlmock.NewResult(1, 1))

	targets := []model.Target{
		{Link: "https://instagram.com/p/Cbbb222"},
		{Link: "https://instagram.com/p/Caaa111"},
		{Link: "https://instagram.com/p/Cbbb222"},
		{Link: "https://instagram.com/p/Cccc333"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 3)
	assert.Equal(t, "https://instagram.com/p/Cbbb222", unique[0].Link)
	assert.Equal(t, "https://instagram.com/p/Caaa111", unique[1].Link)
	assert.Equal(t, "https://instagram.com/p/Cccc333", unique[2].Link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicateTargetsSkipsMalformedEntries(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	targets := []model.Target{
		{},
		{Link: "https://instagram.com/p/Caaa111"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 1)
}

func TestDeduplicateTargetsFallsBackWhenKeyingPanics(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	orig := keysFor
	keysFor = func(model.Target) targetKeys { panic("unexpected target shape") }
	t.Cleanup(func() { keysFor = orig })

	// Even with duplicates in the input, a panic mid-dedup must surface the
	// original list untouched rather than lose a paid target.
	targets := []model.Target{
		{Link: "https://instagram.com/p/Caaa111"},
		{Code: "Caaa111"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Equal(t, targets, unique)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicateTargetsSurvivesAuditWriteFailure(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO duplicate_posts").WillReturnError(assert.AnError)

	targets := []model.Target{
		{Link: "https://instagram.com/p/Caaa111"},
		{Code: "Caaa111"},
	}
	unique := engine.DeduplicateTargets(context.Background(), "txn_test-1", targets)
	assert.Len(t, unique, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
