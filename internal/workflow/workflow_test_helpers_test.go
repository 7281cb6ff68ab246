package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/metering/internal/activity"
)

// registerActivities registers the activity struct with the test workflow
// environment so that parameter and return types can be deserialized by the
// Temporal test framework. All activities are mocked via OnActivity; only the
// type information is needed.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Accounting{})
}
