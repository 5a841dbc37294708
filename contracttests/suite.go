package contracttests

import (
	"github.com/fleetops/driver-contract-tests/framework"
)

// RunTestSuite runs every contract test group against the environment and
// returns the accumulated results.
func RunTestSuite(
	env *SuiteEnv,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := newTestScope(c, env)
		defer t.close()

		t.Run("driver API", DoDriverAPITests)
		t.Run("location API", DoLocationAPITests)
		t.Run("bus events", DoBusEventTests)
		t.Run("websocket push", DoWebSocketTests)
		t.Run("gRPC surface", DoGRPCTests)
	})
}
