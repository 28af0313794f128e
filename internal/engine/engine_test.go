package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tailorline/internal/db"
	"tailorline/internal/domain"
	"tailorline/internal/engine"
	"tailorline/internal/events"
	"tailorline/internal/migrate"
	"tailorline/internal/repo"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))

	env := &testEnv{Ctx: context.Background(), now: t0}
	env.Engine = engine.New(conn, dialect, zaptest.NewLogger(t))
	env.Engine.Now = func() time.Time { return env.now }

	fixture, err := repo.LoadFixture(filepath.Join("..", "..", "testdata", "seed.yml"))
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.Seed(env.Ctx, fixture))
	return env
}

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) create(t *testing.T, steps ...domain.StepSpec) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, createOpts(steps...))
	require.NoError(t, err)
	return p
}

func createOpts(steps ...domain.StepSpec) engine.ProjectCreateOptions {
	return engine.ProjectCreateOptions{
		OrderID:     1,
		CustomerID:  1,
		TailorID:    1,
		Description: "wedding suit",
		Deadline:    t0.Add(10 * 24 * time.Hour),
		Steps:       steps,
		ActorID:     "tester",
	}
}

func spec(no int, hours int) domain.StepSpec {
	return domain.StepSpec{StepNo: no, TemplateID: int64(no%5 + 1), EstimatedHours: hours}
}

// stepID returns the id of the step with the given number.
func (env *testEnv) stepID(t *testing.T, projectID int64, no int) int64 {
	t.Helper()
	v, err := env.Engine.GetProject(env.Ctx, projectID)
	require.NoError(t, err)
	for _, s := range v.Steps {
		if s.StepNo == no {
			return s.ID
		}
	}
	t.Fatalf("project %d has no step %d", projectID, no)
	return 0
}

func requireKind(t *testing.T, err error, kind engine.Kind) *engine.Error {
	t.Helper()
	require.Error(t, err)
	var e *engine.Error
	require.True(t, errors.As(err, &e), "unexpected error type: %v", err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}

func TestCreateProjectSumsEstimates(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))

	assert.NotZero(t, p.ID)
	assert.Equal(t, 10, p.EstimatedHours)
	assert.Equal(t, 0, p.Progress)
	assert.Equal(t, domain.ProjectPending, p.Status)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, v.EstimatedHours)
	assert.Equal(t, domain.ProjectPending, v.Status)
	assert.Equal(t, "Grace Okafor", v.Customer.Name)
	assert.Equal(t, "Rafael Moreno", v.Tailor.Name)
	require.Len(t, v.Steps, 2)
	for _, s := range v.Steps {
		assert.Equal(t, domain.StepPending, s.Status)
		assert.Nil(t, s.ActualHours)
		assert.Nil(t, s.CompletedAt)
		assert.NotEmpty(t, s.TemplateTitle)
	}
	require.Len(t, v.Items, 2)
	assert.Len(t, v.Items[0].Measurements, 2)
}

func TestCompleteFirstStepImmediately(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))

	res, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ActualHours, 0)
	assert.Equal(t, 50, res.Progress)
	assert.Equal(t, domain.ProjectInProgress, res.Status)
	assert.Equal(t, 1, res.StepNo)
	assert.NotEmpty(t, res.Message)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, v.Progress)
	assert.Equal(t, domain.ProjectInProgress, v.Status)
	assert.Equal(t, 1, v.StepsCompleted)
	assert.Equal(t, 2, v.TotalSteps)
}

func TestCompleteStepOutOfOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))
	second := env.stepID(t, p.ID, 2)

	_, err := env.Engine.CompleteStep(env.Ctx, second, "tester")
	e := requireKind(t, err, engine.KindBadRequest)
	assert.Equal(t, "cannot complete step 2 before step 1 is completed", e.Message)

	step, err := env.Engine.Repo.GetStep(env.Ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPending, step.Status)
	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, domain.ProjectPending, v.Status)
}

func TestCompleteAllStepsCompletesProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))

	_, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)
	res, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 2), "tester")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, domain.ProjectCompleted, res.Status)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, v.Status)
	assert.Equal(t, 2, v.StepsCompleted)
}

func TestCreateProjectDuplicateStepNoWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, createOpts(spec(1, 2), spec(1, 3), spec(2, 4)))
	e := requireKind(t, err, engine.KindBadRequest)
	assert.Contains(t, e.Message, "duplicate step_no 1")

	projects, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	var steps int
	require.NoError(t, env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM workflow_steps`).Scan(&steps))
	assert.Zero(t, steps)
}

func TestCreateProjectRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]engine.ProjectCreateOptions{
		"no steps":      createOpts(),
		"step zero":     createOpts(spec(0, 2)),
		"zero estimate": createOpts(spec(1, 0)),
		"no deadline": func() engine.ProjectCreateOptions {
			o := createOpts(spec(1, 2))
			o.Deadline = time.Time{}
			return o
		}(),
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.Engine.CreateProject(env.Ctx, opts)
			requireKind(t, err, engine.KindBadRequest)
		})
	}
}

func TestCreateProjectMissingReferences(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name    string
		mutate  func(*engine.ProjectCreateOptions)
		message string
	}{
		{"order", func(o *engine.ProjectCreateOptions) { o.OrderID = 99 }, "order 99 not found"},
		{"customer", func(o *engine.ProjectCreateOptions) { o.CustomerID = 98 }, "customer 98 not found"},
		{"tailor", func(o *engine.ProjectCreateOptions) { o.TailorID = 97 }, "tailor 97 not found"},
		{"one template", func(o *engine.ProjectCreateOptions) {
			o.Steps = []domain.StepSpec{{StepNo: 1, TemplateID: 42, EstimatedHours: 1}}
		}, "template 42 not found"},
		{"many templates", func(o *engine.ProjectCreateOptions) {
			o.Steps = []domain.StepSpec{
				{StepNo: 1, TemplateID: 9, EstimatedHours: 1},
				{StepNo: 2, TemplateID: 1, EstimatedHours: 1},
				{StepNo: 3, TemplateID: 7, EstimatedHours: 1},
				{StepNo: 4, TemplateID: 9, EstimatedHours: 1},
			}
		}, "templates 7, 9 not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := createOpts(spec(1, 2))
			tc.mutate(&opts)
			_, err := env.Engine.CreateProject(env.Ctx, opts)
			e := requireKind(t, err, engine.KindNotFound)
			assert.Equal(t, tc.message, e.Message)
		})
	}
	projects, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestActualHoursMeasuredFromPredecessor(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))

	env.advance(3*time.Hour + 30*time.Minute)
	first, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)
	assert.Equal(t, 3, first.ActualHours)

	env.advance(5*time.Hour + 59*time.Minute)
	second, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 2), "tester")
	require.NoError(t, err)
	assert.Equal(t, 5, second.ActualHours)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, v.ActualProjectHours)
	// 100*10/8 is capped
	assert.Equal(t, 100, v.TimeEfficiency)
	require.NotNil(t, v.Steps[0].CompletedAt)
	assert.True(t, v.Steps[0].CompletedAt.Equal(t0.Add(3*time.Hour+30*time.Minute)))
}

func TestTimeEfficiencyWhenOverEstimate(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 5))
	env.advance(20 * time.Hour)
	_, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, v.ActualProjectHours)
	assert.Equal(t, 25, v.TimeEfficiency)
}

func TestDaysRemaining(t *testing.T) {
	env := newTestEnv(t)
	opts := createOpts(spec(1, 1))
	opts.Deadline = t0.Add(36 * time.Hour)
	p, err := env.Engine.CreateProject(env.Ctx, opts)
	require.NoError(t, err)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v.DaysRemaining)

	env.advance(48 * time.Hour)
	v, err = env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.DaysRemaining)
}

func TestCompleteStepTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))
	id := env.stepID(t, p.ID, 1)
	_, err := env.Engine.CompleteStep(env.Ctx, id, "tester")
	require.NoError(t, err)

	_, err = env.Engine.CompleteStep(env.Ctx, id, "tester")
	e := requireKind(t, err, engine.KindBadRequest)
	assert.Equal(t, "step 1 is already completed", e.Message)
}

func TestCompleteUnknownStep(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CompleteStep(env.Ctx, 404, "tester")
	e := requireKind(t, err, engine.KindNotFound)
	assert.Equal(t, "workflow step 404 not found", e.Message)
}

func TestNonContiguousStepIsBlocked(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2), spec(3, 2))
	_, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)

	_, err = env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 3), "tester")
	e := requireKind(t, err, engine.KindBadRequest)
	assert.Equal(t, "cannot complete step 3 before step 2 is completed", e.Message)
}

func TestUpdateProjectSynchronizesSteps(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2), spec(2, 3), spec(3, 4))
	before, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	ids := map[int]int64{}
	for _, s := range before.Steps {
		ids[s.StepNo] = s.ID
	}
	_, err = env.Engine.CompleteStep(env.Ctx, ids[1], "tester")
	require.NoError(t, err)

	applied, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{
		ID: p.ID,
		Steps: []domain.StepSpec{
			{StepNo: 1, TemplateID: 1, EstimatedHours: 2},
			{StepNo: 3, TemplateID: 5, Notes: "steam only", EstimatedHours: 7},
			{StepNo: 4, TemplateID: 4, EstimatedHours: 1},
		},
		ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StepSync{Inserted: 1, Updated: 2, Removed: 1}, applied)

	after, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, after.Steps, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{after.Steps[0].StepNo, after.Steps[1].StepNo, after.Steps[2].StepNo})
	assert.Equal(t, ids[1], after.Steps[0].ID)
	assert.Equal(t, ids[3], after.Steps[1].ID)
	assert.NotContains(t, []int64{ids[1], ids[2], ids[3]}, after.Steps[2].ID)

	assert.Equal(t, domain.StepCompleted, after.Steps[0].Status)
	assert.Equal(t, int64(5), after.Steps[1].TemplateID)
	assert.Equal(t, "steam only", after.Steps[1].Notes)
	assert.Equal(t, domain.StepPending, after.Steps[2].Status)
	assert.Equal(t, 10, after.EstimatedHours)

	// progress and status are only rolled up by step completion
	assert.Equal(t, 33, after.Progress)
	assert.Equal(t, domain.ProjectInProgress, after.Status)
}

func TestUpdateProjectHeader(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2))
	desc := "linen summer suit"
	rush := true
	tailor := int64(2)
	deadline := t0.Add(72 * time.Hour)
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{
		ID: p.ID, Description: &desc, Rush: &rush, TailorID: &tailor, Deadline: &deadline, ActorID: "tester",
	})
	require.NoError(t, err)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, v.Description)
	assert.True(t, v.Rush)
	assert.Equal(t, "Lena Park", v.Tailor.Name)
	assert.True(t, v.Deadline.Equal(deadline))
	assert.Equal(t, 3, v.DaysRemaining)
	assert.Equal(t, 2, v.EstimatedHours)
	require.Len(t, v.Steps, 1)
}

func TestUpdateProjectPreconditions(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2), spec(2, 2))
	missingTailor := int64(55)
	desc := "changed"

	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: 999, Description: &desc})
	requireKind(t, err, engine.KindNotFound)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, TailorID: &missingTailor, Description: &desc})
	e := requireKind(t, err, engine.KindNotFound)
	assert.Equal(t, "tailor 55 not found", e.Message)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Description: &desc, Steps: []domain.StepSpec{}})
	requireKind(t, err, engine.KindBadRequest)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Description: &desc, Steps: []domain.StepSpec{spec(2, 1), spec(2, 1)}})
	requireKind(t, err, engine.KindBadRequest)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Description: &desc, Steps: []domain.StepSpec{{StepNo: 1, TemplateID: 77, EstimatedHours: 1}}})
	requireKind(t, err, engine.KindNotFound)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "wedding suit", v.Description)
	assert.Len(t, v.Steps, 2)
	assert.Equal(t, 4, v.EstimatedHours)
}

func TestUpdateStepNotes(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2))
	id := env.stepID(t, p.ID, 1)

	require.NoError(t, env.Engine.UpdateStepNotes(env.Ctx, id, "use silk thread", "tester"))
	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "use silk thread", v.Steps[0].Notes)

	err = env.Engine.UpdateStepNotes(env.Ctx, 9999, "x", "tester")
	requireKind(t, err, engine.KindNotFound)
}

func TestGetProjectIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))
	env.advance(2 * time.Hour)
	_, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, p.ID, 1), "tester")
	require.NoError(t, err)

	a, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	b, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = env.Engine.GetProject(env.Ctx, 12345)
	requireKind(t, err, engine.KindNotFound)
}

func TestConcurrentCompletionOfSameStep(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 4), spec(2, 6))
	id := env.stepID(t, p.ID, 1)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.CompleteStep(env.Ctx, id, "tester")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, engine.KindBadRequest)
	}
	assert.Equal(t, 1, succeeded)

	v, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, v.Progress)
	evts, err := env.Engine.ProjectEvents(env.Ctx, p.ID, 0, events.StepCompleted)
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestConcurrentCompletionAcrossProjects(t *testing.T) {
	env := newTestEnv(t)
	const projects = 4
	ids := make([]int64, projects)
	for i := range ids {
		p := env.create(t, spec(1, 1), spec(2, 1), spec(3, 1), spec(4, 1))
		ids[i] = p.ID
	}
	var wg sync.WaitGroup
	errs := make(chan error, projects*4)
	for _, pid := range ids {
		wg.Add(1)
		go func(pid int64) {
			defer wg.Done()
			v, err := env.Engine.GetProject(env.Ctx, pid)
			if err != nil {
				errs <- err
				return
			}
			for _, s := range v.Steps {
				if _, err := env.Engine.CompleteStep(env.Ctx, s.ID, "tester"); err != nil {
					errs <- err
				}
			}
		}(pid)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for _, pid := range ids {
		v, err := env.Engine.GetProject(env.Ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, 100, v.Progress)
		assert.Equal(t, domain.ProjectCompleted, v.Status)
	}
}

func TestProjectEventsTrail(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 2))
	id := env.stepID(t, p.ID, 1)
	require.NoError(t, env.Engine.UpdateStepNotes(env.Ctx, id, "hem by hand", "amina"))
	_, err := env.Engine.CompleteStep(env.Ctx, id, "")
	require.NoError(t, err)

	evts, err := env.Engine.ProjectEvents(env.Ctx, p.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, evts, 3)
	assert.Equal(t, events.StepCompleted, evts[0].Type)
	assert.Equal(t, "system", evts[0].ActorID)
	assert.Equal(t, events.StepNotesUpdated, evts[1].Type)
	assert.Equal(t, "amina", evts[1].ActorID)
	assert.Equal(t, events.ProjectCreated, evts[2].Type)

	_, err = env.Engine.ProjectEvents(env.Ctx, 321, 10, "")
	requireKind(t, err, engine.KindNotFound)
}

func TestListProjectsFilters(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, spec(1, 1))
	env.create(t, spec(1, 1), spec(2, 1))
	_, err := env.Engine.CompleteStep(env.Ctx, env.stepID(t, a.ID, 1), "tester")
	require.NoError(t, err)

	all, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{Status: domain.ProjectCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, a.ID, done[0].ID)

	_, err = env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{Status: "archived"})
	requireKind(t, err, engine.KindBadRequest)
}

func TestCanceledContextIsTimeout(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, spec(1, 1))
	id := env.stepID(t, p.ID, 1)

	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err := env.Engine.CompleteStep(ctx, id, "tester")
	e := requireKind(t, err, engine.KindTimeout)
	assert.True(t, e.Retryable())

	step, err := env.Engine.Repo.GetStep(env.Ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPending, step.Status)
}
