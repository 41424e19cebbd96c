package crash_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/crash"
	"github.com/kiranshivaraju/crashd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReport(t *testing.T) *models.CrashReport {
	t.Helper()
	r, err := crash.Validate(validEvent())
	require.NoError(t, err)
	return r
}

func TestNewGroup(t *testing.T) {
	r := validReport(t)
	r.Message = strings.Repeat("é", 300)
	r.StackTrace = strPtr("trace")
	r.UserID = strPtr("u1")
	id := uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	g := crash.NewGroup(id, r, now)

	assert.Equal(t, id, g.ID)
	assert.Equal(t, r.Fingerprint, g.Fingerprint)
	assert.Equal(t, strings.Repeat("é", 200), g.Title)
	assert.Equal(t, models.GroupStatusOpen, g.Status)
	assert.Equal(t, now, g.FirstSeenAt)
	assert.Equal(t, now, g.LastSeenAt)
	assert.Equal(t, 1, g.OccurrenceCount)
	assert.Equal(t, 1, g.AffectedUserCount)
	assert.Equal(t, []string{"1.0"}, g.AffectedVersions)
	assert.Equal(t, "trace", *g.LatestStackTrace)
	assert.Nil(t, g.ResolvedInVersion)
}

func TestApplyOccurrence_Aggregates(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := crash.NewGroup(uuid.New(), validReport(t), first)

	r := validReport(t)
	r.AppVersion = "1.1"
	later := first.Add(time.Hour)
	users := 3
	crash.ApplyOccurrence(g, r, later, &users)

	assert.Equal(t, 2, g.OccurrenceCount)
	assert.Equal(t, first, g.FirstSeenAt)
	assert.Equal(t, later, g.LastSeenAt)
	assert.Equal(t, []string{"1.0", "1.1"}, g.AffectedVersions)
	assert.Equal(t, 3, g.AffectedUserCount)
	assert.Nil(t, g.LatestStackTrace)
}

func TestApplyOccurrence_LastSeenNeverMovesBack(t *testing.T) {
	seen := time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC)
	g := crash.NewGroup(uuid.New(), validReport(t), seen)

	crash.ApplyOccurrence(g, validReport(t), seen.Add(-time.Second), nil)

	assert.Equal(t, 2, g.OccurrenceCount)
	assert.Equal(t, seen, g.LastSeenAt)
	assert.Equal(t, seen, g.FirstSeenAt)
}

func TestApplyOccurrence_NilUsersKeepsCount(t *testing.T) {
	g := crash.NewGroup(uuid.New(), validReport(t), time.Now())
	g.AffectedUserCount = 7

	crash.ApplyOccurrence(g, validReport(t), time.Now(), nil)
	assert.Equal(t, 7, g.AffectedUserCount)
}

func TestApplyOccurrence_DuplicateVersionNotRepeated(t *testing.T) {
	g := crash.NewGroup(uuid.New(), validReport(t), time.Now())

	crash.ApplyOccurrence(g, validReport(t), time.Now(), nil)
	crash.ApplyOccurrence(g, validReport(t), time.Now(), nil)
	assert.Equal(t, []string{"1.0"}, g.AffectedVersions)
	assert.Equal(t, 3, g.OccurrenceCount)
}

func TestApplyOccurrence_StatusTransitions(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		resolvedIn *string
		version    string
		want       string
	}{
		{"resolved newer version regresses", models.GroupStatusResolved, strPtr("2.0"), "2.1", models.GroupStatusRegressed},
		{"resolved same version", models.GroupStatusResolved, strPtr("2.0"), "2.0", models.GroupStatusResolved},
		{"resolved older version", models.GroupStatusResolved, strPtr("2.0"), "1.9", models.GroupStatusResolved},
		{"resolved without version", models.GroupStatusResolved, nil, "9.9", models.GroupStatusResolved},
		{"resolved prerelease suffix regresses", models.GroupStatusResolved, strPtr("2.0"), "2.0-hotfix", models.GroupStatusRegressed},
		{"open stays open", models.GroupStatusOpen, strPtr("2.0"), "3.0", models.GroupStatusOpen},
		{"regressed stays regressed", models.GroupStatusRegressed, strPtr("2.0"), "1.0", models.GroupStatusRegressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := crash.NewGroup(uuid.New(), validReport(t), time.Now())
			g.Status = tt.status
			g.ResolvedInVersion = tt.resolvedIn

			r := validReport(t)
			r.AppVersion = tt.version
			crash.ApplyOccurrence(g, r, time.Now(), nil)

			assert.Equal(t, tt.want, g.Status)
			assert.Equal(t, tt.resolvedIn, g.ResolvedInVersion)
		})
	}
}
