package workflowexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaultsAppliesSpecDefaultAndHardCap(t *testing.T) {
	d := &WorkflowDefinition{Steps: []Step{{ID: "a"}}}
	d.SetDefaults()
	assert.Equal(t, defaultMaxIterations, d.MaxIterations)

	d2 := &WorkflowDefinition{Steps: []Step{{ID: "a"}}, MaxIterations: 5000}
	d2.SetDefaults()
	assert.Equal(t, hardMaxIterations, d2.MaxIterations)
}

func TestValidateRejectsEmptyWorkflow(t *testing.T) {
	d := &WorkflowDefinition{}
	assert.ErrorIs(t, d.Validate(), ErrEmptyWorkflow)
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	d := &WorkflowDefinition{Steps: []Step{{ID: "a", Edges: []string{"ghost"}}}}
	assert.ErrorIs(t, d.Validate(), ErrDanglingEdge)
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	d := &WorkflowDefinition{Steps: []Step{
		{ID: "a", Edges: []string{"b"}},
		{ID: "b", Type: StepEnd},
	}}
	assert.NoError(t, d.Validate())
}

func TestStepByIDAndFirstStep(t *testing.T) {
	d := &WorkflowDefinition{Steps: []Step{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, "a", d.firstStep().ID)
	assert.Equal(t, "b", d.stepByID("b").ID)
	assert.Nil(t, d.stepByID("missing"))
}
