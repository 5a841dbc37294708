package framework

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSingleTest(name string, filter Filter, action func(*Context)) Results {
	return Run(filter, nil, func(c *Context) {
		c.Run(name, action)
	})
}

func TestPassingTestIsRecordedWithoutErrors(t *testing.T) {
	results := runSingleTest("happy", nil, func(c *Context) {})

	assert.True(t, results.OK())
	require.Len(t, results.Tests, 2, "the subtest plus the root context")
	assert.Equal(t, "happy", results.Tests[0].TestID.String())
	assert.Empty(t, results.Tests[0].Errors)
}

func TestErrorfRecordsFailureAndContinues(t *testing.T) {
	reached := false
	results := runSingleTest("failing", nil, func(c *Context) {
		c.Errorf("first problem")
		reached = true
		c.Errorf("second problem")
	})

	assert.True(t, reached, "Errorf must not stop the test body")
	assert.False(t, results.OK())
	require.Len(t, results.Failures, 1)
	assert.Len(t, results.Failures[0].Errors, 2)
}

func TestFailNowAbortsTestBody(t *testing.T) {
	reached := false
	results := runSingleTest("aborting", nil, func(c *Context) {
		c.Errorf("fatal problem")
		c.FailNow()
		reached = true
	})

	assert.False(t, reached, "FailNow must stop the test body")
	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.Equal(t, "fatal problem", results.Failures[0].Errors[0].Error())
}

func TestFailNowWithoutMessageStillFails(t *testing.T) {
	results := runSingleTest("silent", nil, func(c *Context) {
		c.FailNow()
	})

	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
}

func TestUnexpectedPanicIsRecordedAsFailure(t *testing.T) {
	results := runSingleTest("panicking", nil, func(c *Context) {
		panic(errors.New("something broke"))
	})

	require.Len(t, results.Failures, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "something broke")
}

func TestSkippedTestIsNotAFailure(t *testing.T) {
	reached := false
	results := runSingleTest("skipping", nil, func(c *Context) {
		c.SkipWithReason("dependency unavailable")
		reached = true
	})

	assert.False(t, reached, "Skip must stop the test body")
	assert.True(t, results.OK())
	assert.True(t, results.Tests[0].Skipped)
}

func TestSubtestFailureDoesNotAbortSiblings(t *testing.T) {
	var order []string
	results := Run(nil, nil, func(c *Context) {
		c.Run("group", func(c *Context) {
			c.Run("bad", func(c *Context) {
				order = append(order, "bad")
				c.FailNow()
			})
			c.Run("good", func(c *Context) {
				order = append(order, "good")
			})
		})
	})

	assert.Equal(t, []string{"bad", "good"}, order)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "group/bad", results.Failures[0].TestID.String())
}

func TestFilterExcludesTestsWithoutRunningThem(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("^keep"))

	ran := []string{}
	Run(filters.AsFilter, nil, func(c *Context) {
		c.Run("keep this", func(c *Context) { ran = append(ran, "keep this") })
		c.Run("drop this", func(c *Context) { ran = append(ran, "drop this") })
	})

	assert.Equal(t, []string{"keep this"}, ran)
}

func TestRegexFiltersCombineIncludeAndExclude(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("driver"))
	require.NoError(t, filters.MustNotMatch.Set("slow"))

	assert.True(t, filters.AsFilter(TestID{Path: []string{"driver API", "create"}}))
	assert.False(t, filters.AsFilter(TestID{Path: []string{"driver API", "slow path"}}))
	assert.False(t, filters.AsFilter(TestID{Path: []string{"location API", "create"}}))
}

func TestInvalidRegexIsRejected(t *testing.T) {
	var list RegexList
	assert.Error(t, list.Set("(unclosed"))
	assert.False(t, list.IsDefined())
}
