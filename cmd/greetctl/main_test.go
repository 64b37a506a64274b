package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"greetbot/internal/app"
	"greetbot/internal/roster"
	"greetbot/internal/run"
	"greetbot/internal/sheets"
	"greetbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakePipeline struct {
	today   types.Date
	result  run.Result
	cands   []types.Candidate
	ran     []types.Date
	closed  bool
	dryRuns []bool
}

func (f *fakePipeline) Today() types.Date { return f.today }

func (f *fakePipeline) Run(_ context.Context, d types.Date) run.Result {
	f.ran = append(f.ran, d)
	res := f.result
	res.Date = d
	return res
}

func (f *fakePipeline) Preview(context.Context, types.Date) ([]types.Candidate, error) {
	return f.cands, nil
}

func (f *fakePipeline) Close() { f.closed = true }

func (f *fakePipeline) factory() pipelineFactory {
	return func(_ context.Context, dryRun bool) (pipeline, error) {
		f.dryRuns = append(f.dryRuns, dryRun)
		return f, nil
	}
}

var today = types.Date{Year: 2024, Month: time.March, Day: 10}

func execute(t *testing.T, factory pipelineFactory, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCmd(t *testing.T) {
	f := &fakePipeline{today: today, result: run.Result{
		RunID: "r-1",
		State: run.StateDone,
		Reports: map[types.OccasionKind]types.DispatchReport{
			types.OccasionBirthday: {Sent: []string{"jane@x.com"}},
		},
	}}

	out, err := execute(t, f.factory(), "run", "--dry-run")
	require.NoError(t, err)

	var v struct {
		Date    string                          `yaml:"date"`
		Status  string                          `yaml:"status"`
		DryRun  bool                            `yaml:"dry_run"`
		Reports map[string]types.DispatchReport `yaml:"reports"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &v))
	assert.Equal(t, "2024-03-10", v.Date)
	assert.Equal(t, "success", v.Status)
	assert.True(t, v.DryRun)
	assert.Equal(t, []string{"jane@x.com"}, v.Reports["birthday"].Sent)
	assert.Equal(t, []bool{true}, f.dryRuns)
	assert.True(t, f.closed)
}

func TestRunCmd_DateFlag(t *testing.T) {
	f := &fakePipeline{today: today, result: run.Result{State: run.StateDone}}

	_, err := execute(t, f.factory(), "run", "--date", "2024-12-25")
	require.NoError(t, err)
	assert.Equal(t, []types.Date{{Year: 2024, Month: time.December, Day: 25}}, f.ran)
	assert.Equal(t, []bool{false}, f.dryRuns)

	_, err = execute(t, f.factory(), "run", "--date", "tomorrow")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidDate, types.CodeOf(err))
}

func TestRunCmd_FailedRunReturnsError(t *testing.T) {
	f := &fakePipeline{today: today, result: run.Result{State: run.StateFailed, Err: errors.New("roster unreadable")}}

	out, err := execute(t, f.factory(), "run")
	require.Error(t, err)
	assert.Contains(t, out, "status: failure")
	assert.Contains(t, out, "roster unreadable")
}

func TestPreviewCmd(t *testing.T) {
	f := &fakePipeline{today: today, cands: []types.Candidate{{
		RecipientEmail: "jane@x.com",
		OccasionKind:   types.OccasionBirthday,
		OccasionKey:    types.KeyBirthday,
		Subject:        "Happy Birthday Jane!",
	}}}

	out, err := execute(t, f.factory(), "preview")
	require.NoError(t, err)
	assert.Contains(t, out, "recipient_email: jane@x.com")
	assert.Contains(t, out, "subject: Happy Birthday Jane!")
	assert.Equal(t, []bool{true}, f.dryRuns, "preview never sends")
}

func TestFactoryError(t *testing.T) {
	failing := func(context.Context, bool) (pipeline, error) { return nil, errors.New("bad config") }
	_, err := execute(t, failing, "preview")
	assert.EqualError(t, err, "bad config")
}

func TestInitWorkbookCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")

	out, err := execute(t, nil, "init-workbook", path, "--sample")
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	rows, err := sheets.NewWorkbookGateway(path).ReadTable(context.Background(), sheets.TableRef{Range: roster.TableRoster})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	logRows, err := sheets.NewWorkbookGateway(path).ReadTable(context.Background(), sheets.TableRef{Range: app.SendLogTable})
	require.NoError(t, err)
	assert.Len(t, logRows, 1)

	_, err = execute(t, nil, "init-workbook", path)
	assert.Error(t, err, "refuses to overwrite")
}
