package repository_test

import (
	"context"
	"strings"
	"testing"

	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	"exforge/internal/testutil"

	"github.com/go-sql-driver/mysql"
)

func TestCreateTaskStoresOrderedLinks(t *testing.T) {
	fake := &testutil.FakeDB{}
	store := repository.NewSQLStore(fake)

	task := &model.Task{ExerciseID: 3, Name: "Sort", TestCaseIDs: []int64{40, 41}}
	id, err := store.CreateTask(context.Background(), nil, task)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, task.ID, id)

	testutil.AssertEqual(t, len(fake.Statements), 3)
	testutil.AssertTrue(t, strings.HasPrefix(fake.Statements[0].Query, "INSERT INTO exercise_task "), "task row first")
	testutil.AssertEqual(t, fake.Statements[1].Args, []interface{}{id, int64(40), 0})
	testutil.AssertEqual(t, fake.Statements[2].Args, []interface{}{id, int64(41), 1})
}

func TestCreateHintUsesReturningOnPostgres(t *testing.T) {
	fake := &testutil.FakeDB{DialectTag: "postgres"}
	store := repository.NewSQLStore(fake)

	hint := &model.Hint{ExerciseID: 1, Title: "Look at the loop", Kind: model.HintText}
	id, err := store.CreateHint(context.Background(), nil, hint)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, hint.ID, id)
	testutil.AssertTrue(t, strings.HasSuffix(fake.Statements[0].Query, "RETURNING id"), "postgres insert returns id")
}

func TestSetLockedBuildsPlaceholderList(t *testing.T) {
	fake := &testutil.FakeDB{}
	store := repository.NewSQLStore(fake)

	err := store.SetLocked(context.Background(), nil, []int64{5, 6, 7}, true)
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, strings.HasSuffix(fake.Statements[0].Query, "IN (?,?,?)"), "three placeholders")
	testutil.AssertEqual(t, fake.Statements[0].Args, []interface{}{true, int64(5), int64(6), int64(7)})

	err = store.SetLocked(context.Background(), nil, nil, true)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(fake.Statements), 1)
}

func TestDeleteExerciseRemovesChildrenFirst(t *testing.T) {
	fake := &testutil.FakeDB{}
	store := repository.NewSQLStore(fake)

	err := store.DeleteExercise(context.Background(), nil, 9)
	testutil.AssertNil(t, err)

	queries := fake.Queries()
	last := queries[len(queries)-1]
	testutil.AssertEqual(t, last, "DELETE FROM programming_exercise WHERE id = ?")
	for _, q := range queries[:len(queries)-1] {
		testutil.AssertTrue(t, !strings.Contains(q, "FROM programming_exercise"), "exercise row deleted last")
	}
}

func TestDeleteTasksDetachesHints(t *testing.T) {
	fake := &testutil.FakeDB{}
	store := repository.NewSQLStore(fake)

	testutil.AssertNil(t, store.DeleteTasks(context.Background(), nil, 2))
	testutil.AssertTrue(t, strings.HasPrefix(fake.Queries()[0], "UPDATE exercise_hint SET task_id = NULL"), "hints detached before tasks are removed")
}

func TestCreateExerciseReportsTakenProjectKey(t *testing.T) {
	fake := &testutil.FakeDB{ExecErr: &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'PROGSORT' for key 'programming_exercise.uk_exercise_project_key'",
	}}
	store := repository.NewSQLStore(fake)

	_, err := store.CreateExercise(context.Background(), nil, &model.Exercise{ProjectKey: "PROGSORT"})
	testutil.AssertErrorIs(t, err, repository.ErrProjectKeyExists)
}
