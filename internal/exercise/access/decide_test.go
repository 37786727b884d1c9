package access_test

import (
	"testing"
	"time"

	"exforge/internal/exercise/access"
	"exforge/internal/testutil"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func kinds(commands []access.Command) []access.CommandKind {
	out := make([]access.CommandKind, 0, len(commands))
	for _, c := range commands {
		out = append(out, c.Kind)
	}
	return out
}

// snapshots enumerates every combination of unset, past and future dates
// with both tool policies.
func snapshots() []access.Snapshot {
	dates := []*time.Time{nil, at(-time.Hour), at(time.Hour)}
	var out []access.Snapshot
	for _, start := range dates {
		for _, due := range dates {
			for _, offline := range []bool{false, true} {
				out = append(out, access.Snapshot{StartDate: start, DueDate: due, AllowOfflineIDE: offline})
			}
		}
	}
	return out
}

func started(s access.Snapshot) bool { return s.StartDate == nil || !s.StartDate.After(now) }
func open(s access.Snapshot) bool    { return s.DueDate == nil || s.DueDate.After(now) }

func TestDecideStricterDueDateOnly(t *testing.T) {
	before := access.Snapshot{DueDate: at(time.Hour), AllowOfflineIDE: true}
	after := access.Snapshot{DueDate: at(-time.Hour), AllowOfflineIDE: true}

	got := access.Decide(before, after, now)
	testutil.AssertEqual(t, got, []access.Command{
		{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true},
	})
}

func TestDecideRelaxEverything(t *testing.T) {
	before := access.Snapshot{StartDate: at(time.Hour), DueDate: at(-time.Hour), AllowOfflineIDE: false}
	after := access.Snapshot{AllowOfflineIDE: true}

	got := access.Decide(before, after, now)
	testutil.AssertEqual(t, kinds(got), []access.CommandKind{access.UnlockWithEarlierStartDateAndLaterDueDate})
}

func TestDecideStricterStartLocksEverythingAndStops(t *testing.T) {
	for _, before := range snapshots() {
		for _, after := range snapshots() {
			if !started(before) || started(after) {
				continue
			}
			got := access.Decide(before, after, now)
			testutil.AssertEqual(t, kinds(got), []access.CommandKind{access.LockAllRepositoriesAndParticipations})
		}
	}
}

func TestDecideDueDateOnlyNeverLocksAllRepositories(t *testing.T) {
	for _, before := range snapshots() {
		for _, after := range snapshots() {
			sameStart := started(before) == started(after)
			if !sameStart || before.AllowOfflineIDE != after.AllowOfflineIDE || !open(before) || open(after) {
				continue
			}
			got := access.Decide(before, after, now)
			testutil.AssertEqual(t, kinds(got), []access.CommandKind{access.LockParticipationsWithEarlierDueDate})
		}
	}
}

func TestDecideUnchangedPolicyIssuesNothing(t *testing.T) {
	for _, s := range snapshots() {
		testutil.AssertEqual(t, len(access.Decide(s, s, now)), 0)
	}
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name   string
		before access.Snapshot
		after  access.Snapshot
		want   []access.Command
	}{
		{
			name:   "offline ide disabled",
			before: access.Snapshot{AllowOfflineIDE: true},
			after:  access.Snapshot{},
			want:   []access.Command{{Kind: access.LockAllRepositories}},
		},
		{
			name:   "offline ide disabled and due date passed",
			before: access.Snapshot{DueDate: at(time.Hour), AllowOfflineIDE: true},
			after:  access.Snapshot{DueDate: at(-time.Hour)},
			want: []access.Command{
				{Kind: access.LockAllRepositories},
				{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: false},
			},
		},
		{
			name:   "offline ide enabled",
			before: access.Snapshot{},
			after:  access.Snapshot{AllowOfflineIDE: true},
			want:   []access.Command{{Kind: access.UnlockRepositoriesWithEarlierStartDateAndLaterDueDate}},
		},
		{
			name:   "offline ide enabled and due date extended",
			before: access.Snapshot{DueDate: at(-time.Hour)},
			after:  access.Snapshot{DueDate: at(time.Hour), AllowOfflineIDE: true},
			want:   []access.Command{{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate}},
		},
		{
			name:   "due date extended without offline ide",
			before: access.Snapshot{DueDate: at(-time.Hour)},
			after:  access.Snapshot{DueDate: at(time.Hour)},
			want:   []access.Command{{Kind: access.UnlockParticipationsWithEarlierStartDateAndLaterDueDate}},
		},
		{
			name:   "start date moved to the past with offline ide",
			before: access.Snapshot{StartDate: at(time.Hour), AllowOfflineIDE: true},
			after:  access.Snapshot{StartDate: at(-time.Hour), AllowOfflineIDE: true},
			want:   []access.Command{{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate}},
		},
		{
			name:   "due date passed and start date moved earlier",
			before: access.Snapshot{StartDate: at(time.Hour), DueDate: at(2 * time.Hour)},
			after:  access.Snapshot{StartDate: at(-2 * time.Hour), DueDate: at(-time.Hour)},
			want: []access.Command{
				{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true},
				{Kind: access.UnlockParticipationsWithEarlierStartDateAndLaterDueDate},
			},
		},
		{
			name:   "future dates shifted within the future",
			before: access.Snapshot{StartDate: at(time.Hour), DueDate: at(2 * time.Hour)},
			after:  access.Snapshot{StartDate: at(3 * time.Hour), DueDate: at(4 * time.Hour)},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, access.Decide(tt.before, tt.after, now), tt.want)
		})
	}
}

func TestSnapshotFallsBackToReleaseDate(t *testing.T) {
	ex := testutil.SourceExercise()
	snap := access.SnapshotOf(ex)
	testutil.AssertEqual(t, snap.StartDate, ex.ReleaseDate)
	testutil.AssertEqual(t, snap.DueDate, ex.DueDate)
	testutil.AssertTrue(t, snap.AllowOfflineIDE, "offline ide copied")
}
