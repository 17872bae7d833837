package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskPending, TaskCompleted, false},
		{TaskPending, TaskFailed, false},
		{TaskRunning, TaskCompleted, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskPending, false},
		{TaskCompleted, TaskFailed, false},
		{TaskFailed, TaskRunning, false},
		{TaskRunning, TaskTimeout, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, TaskCompleted.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.False(t, TaskTimeout.IsTerminal())
}

func TestTask_CloneIsIndependent(t *testing.T) {
	step := "embedding"
	now := time.Now()
	task := &Task{Status: TaskRunning, CurrentStep: &step, Result: Payload(`{"a":1}`), StartedAt: &now}

	c := task.Clone()
	*c.CurrentStep = "changed"
	c.Result[2] = 'b'
	*c.StartedAt = now.Add(time.Hour)

	assert.Equal(t, "embedding", *task.CurrentStep)
	assert.JSONEq(t, `{"a":1}`, string(task.Result))
	assert.Equal(t, now, *task.StartedAt)
}

func TestPayload(t *testing.T) {
	p, err := NewPayload(Methodology{Model: "GCN", Datasets: []string{"Cora"}})
	require.NoError(t, err)

	var m Methodology
	require.NoError(t, p.Decode(&m))
	assert.Equal(t, "GCN", m.Model)

	empty, err := NewPayload(nil)
	require.NoError(t, err)
	out, err := json.Marshal(struct {
		V Payload `json:"v"`
	}{empty})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":null}`, string(out))

	v, err := empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStringList_Scan(t *testing.T) {
	var s StringList
	require.NoError(t, s.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringList{"a", "b"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, StringList{}, s)

	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}

func TestExtractionResult_State(t *testing.T) {
	var missing *ExtractionResult
	assert.Equal(t, ResultAbsent, missing.State())
	assert.Equal(t, ResultNoneFound, (&ExtractionResult{NoneFound: true}).State())
	assert.Equal(t, ResultPresent, (&ExtractionResult{Value: Payload(`[]`)}).State())

	assert.True(t, ValidResultType("methodology"))
	assert.False(t, ValidResultType("authors"))
}

func TestDocument_DisplayTitle(t *testing.T) {
	d := &Document{Filename: "paper.pdf"}
	assert.Equal(t, "paper.pdf", d.DisplayTitle())
	title := "Attention"
	d.Title = &title
	assert.Equal(t, "Attention", d.DisplayTitle())
}
