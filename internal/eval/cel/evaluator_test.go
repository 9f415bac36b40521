package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskVars(content, question string) map[string]interface{} {
	return map[string]interface{}{
		"task": map[string]interface{}{
			"content":  content,
			"question": question,
			"model":    "chatgpt",
		},
	}
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator()

	result, err := e.Evaluate(context.Background(), `task.model == "chatgpt"`, taskVars("x", ""))
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = e.Evaluate(context.Background(), `size(task.content)`, taskVars("hello", ""))
	require.NoError(t, err)
	assert.EqualValues(t, 5, result)
}

func TestEvaluate_CachesPrograms(t *testing.T) {
	e := NewEvaluator()
	vars := taskVars("x", "")

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), `task.content != ""`, vars)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.CacheSize())
}

func TestEvaluate_CompileError(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate(context.Background(), `task.content ==`, taskVars("x", ""))
	assert.Error(t, err)
	assert.Zero(t, e.CacheSize())
}

func TestCheck(t *testing.T) {
	e := NewEvaluator()
	rules := []Rule{
		{Condition: `task.content != ""`, Message: "content is required"},
		{Condition: `task.question != ""`, Message: "question is required"},
	}

	failed, err := e.Check(context.Background(), rules, taskVars("text", "why?"))
	require.NoError(t, err)
	assert.Nil(t, failed)

	failed, err = e.Check(context.Background(), rules, taskVars("text", ""))
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "question is required", failed.Message)

	failed, err = e.Check(context.Background(), rules, taskVars("", ""))
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "content is required", failed.Message, "rules are checked in order")
}

func TestCheck_NonBoolRule(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Check(context.Background(), []Rule{{Condition: `size(task.content)`}}, taskVars("x", ""))
	assert.Error(t, err)
}

func TestValidateExpression(t *testing.T) {
	e := NewEvaluator()

	assert.NoError(t, e.ValidateExpression(`size(task.content) <= 200000`))
	assert.NoError(t, e.ValidateExpression(`task.model in ["chatgpt", "claude"]`))
	assert.Error(t, e.ValidateExpression(`task.content +`))
	assert.Error(t, e.ValidateExpression(`"not a condition"`))
	assert.Error(t, e.ValidateExpression(`unknown_var == 1`))
}
