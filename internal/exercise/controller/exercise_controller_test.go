package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commonmw "exforge/internal/common/http/middleware"
	"exforge/internal/exercise/access"
	"exforge/internal/exercise/controller"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/service"
	"exforge/internal/testutil"
	pkgerrors "exforge/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type fakeServices struct {
	importInput service.ImportInput
	importErr   error
	created     *model.Exercise
	timingID    int64
	timing      service.TimingInput
	commands    []access.Command
	deletedID   int64
	deleteErr   error
	tasksID     int64
}

func (f *fakeServices) ImportExercise(_ context.Context, input service.ImportInput) (*model.Exercise, error) {
	f.importInput = input
	if f.importErr != nil {
		return nil, f.importErr
	}
	ex := *input.Target
	ex.ID = 1001
	ex.GenerateProjectKey()
	return &ex, nil
}

func (f *fakeServices) CreateExercise(_ context.Context, ex *model.Exercise) (*model.Exercise, error) {
	f.created = ex
	out := *ex
	out.ID = 1002
	return &out, nil
}

func (f *fakeServices) UpdateTiming(_ context.Context, id int64, input service.TimingInput) (*service.UpdateResult, error) {
	f.timingID = id
	f.timing = input
	return &service.UpdateResult{
		Exercise: &model.Exercise{ID: id, DueDate: input.DueDate},
		Commands: f.commands,
	}, nil
}

func (f *fakeServices) DeleteExercise(_ context.Context, id int64) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeServices) RegenerateTasks(_ context.Context, id int64) ([]*model.Task, error) {
	f.tasksID = id
	return []*model.Task{{ID: 1, ExerciseID: id, Name: "Sort"}}, nil
}

type envelope struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    map[string]any      `json:"data"`
}

func newRouter(f *fakeServices) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := controller.NewExerciseController(f, f, f, f, f)
	return controller.NewRouter(h, controller.RouterOptions{})
}

func serve(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	testutil.MustUnmarshalJSON(t, rec.Body.Bytes(), &env)
	return rec, env
}

const importBody = `{
  "exercise": {
    "courseShortName": "prog",
    "title": "Sorting",
    "shortName": "sort",
    "packageName": "de.prog.sort",
    "language": "JAVA",
    "projectType": "MAVEN"
  },
  "recreateBuildPlans": true
}`

func TestImportPassesSourceAndTarget(t *testing.T) {
	f := &fakeServices{}
	rec, env := serve(t, newRouter(f), http.MethodPost, "/api/v1/exercises/7/import", importBody)

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, env.Code, pkgerrors.Success)
	testutil.AssertEqual(t, f.importInput.SourceExerciseID, int64(7))
	testutil.AssertTrue(t, f.importInput.RecreateBuildPlans, "recreate flag forwarded")
	testutil.AssertEqual(t, f.importInput.Target.Kind, model.KindProgramming)
	testutil.AssertEqual(t, f.importInput.Target.Language, model.LanguageJava)
	testutil.AssertEqual(t, env.Data["projectKey"], "PROGSORT")
	testutil.AssertEqual(t, rec.Header().Get("X-Trace-Id") != "", true)
}

func TestImportRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
	}{
		{name: "non numeric id", path: "/api/v1/exercises/abc/import", body: importBody},
		{name: "zero id", path: "/api/v1/exercises/0/import", body: importBody},
		{name: "missing title", path: "/api/v1/exercises/7/import", body: `{"exercise":{"courseShortName":"p","shortName":"s","language":"JAVA"}}`},
		{name: "unknown kind", path: "/api/v1/exercises/7/import", body: `{"exercise":{"kind":"essay","courseShortName":"p","title":"t","shortName":"s","language":"JAVA"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeServices{}
			rec, env := serve(t, newRouter(f), http.MethodPost, tc.path, tc.body)
			testutil.AssertEqual(t, rec.Code, http.StatusBadRequest)
			testutil.AssertEqual(t, env.Code, pkgerrors.InvalidParams)
			testutil.AssertTrue(t, f.importInput.Target == nil, "service not called")
		})
	}
}

func TestImportMapsServiceErrors(t *testing.T) {
	f := &fakeServices{importErr: pkgerrors.New(pkgerrors.ImportInProgress)}
	rec, env := serve(t, newRouter(f), http.MethodPost, "/api/v1/exercises/7/import", importBody)
	testutil.AssertEqual(t, rec.Code, http.StatusConflict)
	testutil.AssertEqual(t, env.Code, pkgerrors.ImportInProgress)
}

func TestCreate(t *testing.T) {
	f := &fakeServices{}
	body := `{"courseShortName":"prog","title":"Sorting","shortName":"sort","language":"SWIFT","allowOnlineEditor":true}`
	rec, env := serve(t, newRouter(f), http.MethodPost, "/api/v1/exercises", body)

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, f.created.Language, model.LanguageSwift)
	testutil.AssertTrue(t, f.created.AllowOnlineEditor, "online editor forwarded")
	testutil.AssertEqual(t, env.Data["id"], float64(1002))
}

func TestUpdateTimingReportsCommands(t *testing.T) {
	f := &fakeServices{commands: []access.Command{
		{Kind: access.LockAllRepositories},
		{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: false},
	}}
	body := `{"dueDate":"2026-01-10T12:00:00Z","allowOfflineIde":false}`
	rec, env := serve(t, newRouter(f), http.MethodPut, "/api/v1/exercises/3/timing", body)

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, f.timingID, int64(3))
	testutil.AssertTrue(t, f.timing.DueDate.Equal(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)), "due date parsed")
	testutil.AssertTrue(t, f.timing.AllowOfflineIDE != nil && !*f.timing.AllowOfflineIDE, "offline flag forwarded")
	testutil.AssertTrue(t, f.timing.AllowOnlineEditor == nil, "absent flag stays nil")
	testutil.AssertEqual(t, env.Data["commands"], []any{
		"LOCK_ALL_REPOSITORIES",
		"LOCK_PARTICIPATIONS_WITH_EARLIER_DUE_DATE",
	})
}

func TestDeleteAndRegenerate(t *testing.T) {
	f := &fakeServices{}
	router := newRouter(f)

	rec, env := serve(t, router, http.MethodDelete, "/api/v1/exercises/9", "")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, env.Message, "Exercise deleted")
	testutil.AssertEqual(t, f.deletedID, int64(9))

	rec, env = serve(t, router, http.MethodPost, "/api/v1/exercises/9/tasks:regenerate", "")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, f.tasksID, int64(9))
	testutil.AssertEqual(t, len(env.Data["tasks"].([]any)), 1)

	f.deleteErr = pkgerrors.New(pkgerrors.ExerciseNotFound)
	rec, _ = serve(t, router, http.MethodDelete, "/api/v1/exercises/9", "")
	testutil.AssertEqual(t, rec.Code, http.StatusNotFound)
}

func TestRouterExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	f := &fakeServices{}
	router := controller.NewRouter(controller.NewExerciseController(f, f, f, f, f), controller.RouterOptions{
		Observer:       commonmw.NewPrometheusHTTPObserver(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	serve(t, router, http.MethodDelete, "/api/v1/exercises/9", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertTrue(t, strings.Contains(rec.Body.String(), `route="/api/v1/exercises/:id"`), "route label recorded")
}
