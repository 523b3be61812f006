package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen/pkg/agent"
	"codegen/pkg/agent/llm"
	"codegen/pkg/config"
	"codegen/pkg/graph"
	"codegen/pkg/logx"
	"codegen/pkg/metrics"
	"codegen/pkg/persistence"
	"codegen/pkg/proto"
	"codegen/pkg/testkit"
	"codegen/pkg/tools"
)

// sharedClient serves every stage from one script; stages run strictly in sequence.
type sharedClient struct {
	llm  *testkit.ScriptedLLM
	seen []agent.Type
}

func (s *sharedClient) CreateClient(t agent.Type) (llm.LLMClient, error) {
	s.seen = append(s.seen, t)
	return s.llm, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ProjectRoot = "/virtual/generated_project"
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, script *testkit.ScriptedLLM, fs billy.Filesystem, cps *persistence.Store) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Config:      cfg,
		Clients:     &sharedClient{llm: script},
		Checkpoints: cps,
		Filesystem:  fs,
	})
	require.NoError(t, err)
	return p
}

func calculatorScript() *testkit.ScriptedLLM {
	steps := []testkit.Step{
		testkit.SubmitPlan("Colorful Calculator", map[string]string{
			"index.html": "Calculator layout",
			"style.css":  "Colorful theme",
			"script.js":  "Arithmetic and button handling",
		}, "index.html", "style.css", "script.js"),
		testkit.SubmitTaskPlan(
			"index.html", "Create the calculator markup with a display and buttons; load style.css and script.js",
			"style.css", "Style the display and buttons referenced by index.html",
			"script.js", "Implement add, subtract, multiply, divide and wire the buttons from index.html",
		),
	}
	steps = append(steps, testkit.ImplementFile("index.html", "<html><body><div id=\"display\"></div></body></html>")...)
	steps = append(steps, testkit.ImplementFile("style.css", "#display { color: teal; }")...)
	steps = append(steps, testkit.ImplementFile("script.js", "function add(a, b) { return a + b; }")...)
	return testkit.NewScriptedLLM(steps...)
}

func TestCalculatorEndToEnd(t *testing.T) {
	script := calculatorScript()
	clients := &sharedClient{llm: script}
	p, err := New(Options{Config: testConfig(), Clients: clients, Filesystem: memfs.New()})
	require.NoError(t, err)
	assert.Equal(t, []agent.Type{agent.TypePlanner, agent.TypeArchitect, agent.TypeCoder}, clients.seen)

	final, err := p.Run(context.Background(), "Build a colourful modern calculator app in html css and js")
	require.NoError(t, err)

	testkit.AssertDone(t, &final)
	assert.Equal(t, "Colorful Calculator", final.Plan.Name)
	assert.Equal(t, 3, final.TaskPlan.Len())
	assert.NotEmpty(t, final.RunID)
	assert.Equal(t, 0, script.Remaining(), "every scripted step used")

	files, err := p.Sandbox().List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "script.js", "style.css"}, files)

	content, err := p.Sandbox().Read("script.js")
	require.NoError(t, err)
	assert.Contains(t, content, "function add")

	// the coder saw the read result of a file it had not written yet
	testkit.AssertToolResult(t, script, 3, tools.ToolReadFile, "")
}

func TestStageTemperaturesFromConfig(t *testing.T) {
	script := calculatorScript()
	cfg := testConfig()
	cfg.Agent.PlanningTemperature = 0.7
	cfg.Agent.Temperature = 0.1
	p, err := New(Options{Config: cfg, Clients: &sharedClient{llm: script}, Filesystem: memfs.New()})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "Build a calculator")
	require.NoError(t, err)

	reqs := script.Requests()
	require.Greater(t, len(reqs), 2)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 1e-6, "planner")
	assert.InDelta(t, 0.7, reqs[1].Temperature, 1e-6, "architect")
	for _, req := range reqs[2:] {
		assert.InDelta(t, 0.1, req.Temperature, 1e-6, "coder")
	}
}

func TestToolLoopDebugFollowsDebugDomains(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	logx.SetDebugConfig(true, false, "")
	logx.SetDebugDomains([]string{"toolloop"})
	t.Cleanup(func() {
		logx.SetOutput(nil)
		logx.SetDebugConfig(false, false, "")
		logx.SetDebugDomains(nil)
	})

	p, err := New(Options{Config: testConfig(), Clients: &sharedClient{llm: calculatorScript()}, Filesystem: memfs.New()})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "Build a calculator")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Messages sent to LLM:")
	assert.Contains(t, buf.String(), "ToolCall[0]")
}

func TestZeroStepsFinishesImmediately(t *testing.T) {
	script := testkit.NewScriptedLLM(
		testkit.SubmitPlan("nothing", map[string]string{"README.md": "notes"}, "README.md"),
		testkit.SubmitTaskPlan(),
	)
	p := newPipeline(t, testConfig(), script, memfs.New(), nil)

	final, err := p.Run(context.Background(), "do nothing")
	require.NoError(t, err)
	testkit.AssertDone(t, &final)
	testkit.AssertStepIndex(t, &final, 0)
	assert.Equal(t, 2, script.Calls(), "no agent call")

	files, err := p.Sandbox().List(".")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestEmptyRequestRejected(t *testing.T) {
	script := testkit.NewScriptedLLM()
	p := newPipeline(t, testConfig(), script, memfs.New(), nil)

	_, err := p.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyRequest)
	assert.Equal(t, 0, script.Calls())
}

func TestRecursionLimitStopsLongRuns(t *testing.T) {
	cfg := testConfig()
	cfg.RecursionLimit = 3
	script := testkit.NewScriptedLLM(
		testkit.SubmitPlan("p", map[string]string{"a.py": "a", "b.py": "b"}, "a.py", "b.py"),
		testkit.SubmitTaskPlan("a.py", "one", "b.py", "two"),
	)
	script.Push(testkit.ImplementFile("a.py", "x = 1")...)
	p := newPipeline(t, cfg, script, memfs.New(), nil)

	last, err := p.Run(context.Background(), "two files")
	var re *graph.ResourceExhaustedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.Limit)
	testkit.AssertStepIndex(t, &last, 1)
	assert.Equal(t, proto.StatusRunning, last.Status)
}

func TestPlanningFailureAbortsRun(t *testing.T) {
	script := testkit.NewScriptedLLM(testkit.Done("I would rather chat"))
	p := newPipeline(t, testConfig(), script, memfs.New(), nil)

	final, err := p.Run(context.Background(), "build it")
	var gf *proto.GenerationFailure
	require.ErrorAs(t, err, &gf)
	assert.Equal(t, "planner", gf.Stage)
	assert.Nil(t, final.Plan)
}

func TestResumeAfterAgentFailure(t *testing.T) {
	ctx := context.Background()
	cps, err := persistence.Open(persistence.MemoryDSN)
	require.NoError(t, err)
	defer func() { _ = cps.Close() }()
	fs := memfs.New()

	first := testkit.NewScriptedLLM(
		testkit.SubmitPlan("p", map[string]string{"a.py": "a", "b.py": "b"}, "a.py", "b.py"),
		testkit.SubmitTaskPlan("a.py", "one", "b.py", "two"),
	)
	first.Push(testkit.ImplementFile("a.py", "A = 1")...)
	first.Push(testkit.Fail(errors.New("provider outage")))

	p := newPipeline(t, testConfig(), first, fs, cps)
	failed, err := p.Run(ctx, "two files")
	require.Error(t, err)
	testkit.AssertStepIndex(t, &failed, 1)

	run, err := cps.GetRun(ctx, failed.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
	assert.Equal(t, 3, run.Steps)

	second := testkit.NewScriptedLLM(testkit.ImplementFile("b.py", "from a import A")...)
	p2 := newPipeline(t, testConfig(), second, fs, cps)
	final, err := p2.Resume(ctx, failed.RunID)
	require.NoError(t, err)

	testkit.AssertDone(t, &final)
	assert.Equal(t, failed.RunID, final.RunID)
	assert.Equal(t, 3, second.Calls(), "planner and architect are not re-run")

	a, err := p2.Sandbox().Read("a.py")
	require.NoError(t, err)
	assert.Equal(t, "A = 1", a)

	run, err = cps.GetRun(ctx, failed.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, run.Status)
	assert.Equal(t, 5, run.Steps)
}

func TestResumeFinishedRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	cps, err := persistence.Open(persistence.MemoryDSN)
	require.NoError(t, err)
	defer func() { _ = cps.Close() }()

	script := testkit.NewScriptedLLM(
		testkit.SubmitPlan("p", map[string]string{"a.py": "a"}, "a.py"),
		testkit.SubmitTaskPlan(),
	)
	p := newPipeline(t, testConfig(), script, memfs.New(), cps)
	done, err := p.Run(ctx, "nothing")
	require.NoError(t, err)

	final, err := p.Resume(ctx, done.RunID)
	require.NoError(t, err)
	testkit.AssertDone(t, &final)
	assert.Equal(t, 2, script.Calls())
}

func TestResumeWithoutCheckpointStore(t *testing.T) {
	p := newPipeline(t, testConfig(), testkit.NewScriptedLLM(), memfs.New(), nil)
	_, err := p.Resume(context.Background(), "any")
	assert.Error(t, err)
}

func TestStageMetricsRecorded(t *testing.T) {
	rec := &stageCounter{}
	script := testkit.NewScriptedLLM(
		testkit.SubmitPlan("p", map[string]string{"a.py": "a"}, "a.py"),
		testkit.SubmitTaskPlan(),
	)
	_, err := Run(context.Background(), "x", Options{
		Config:     testConfig(),
		Clients:    &sharedClient{llm: script},
		Recorder:   rec,
		Filesystem: memfs.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"planner": 1, "architect": 1, "coder": 1}, rec.stages)
}

type stageCounter struct {
	metrics.NoopRecorder
	stages map[string]int
}

func (s *stageCounter) ObserveStage(stage string, _ bool, _ time.Duration) {
	if s.stages == nil {
		s.stages = map[string]int{}
	}
	s.stages[stage]++
}

func TestRoute(t *testing.T) {
	state := proto.NewPipelineState("r", "p")
	assert.Equal(t, RouteLoop, Route(state))
	state.Status = proto.StatusDone
	assert.Equal(t, RouteEnd, Route(state))
}
