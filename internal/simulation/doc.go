// Package simulation provides the bloom cascade engine and a test harness
// for validating its emergent dynamics.
//
// The Engine wires the real components together (spatial index, oscillation,
// field sampler, agent population, connectivity graph, phase controller and
// metrics) behind a small interface: Step, Run, RunCascade, manual phase
// control, forecasting, trajectory classification and anomaly detection.
// State and Restore produce and consume a serializable snapshot that resumes
// stepping deterministically.
//
// The harness runs Scenarios through a Runner and checks property-style
// assertions over the recorded snapshots.
//
// Usage:
//
//	func TestCascadePrunes(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "cascade",
//	        Config: smallConfig(),
//	        Steps:  60,
//	        Blooms: []int{5},
//	    })
//	    simulation.AssertMetricsBounded(t, result)
//	    simulation.AssertPruningNeverGrows(t, result)
//	}
package simulation
