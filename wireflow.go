// Package wireflow is a flow-based message runtime: nodes wired into
// directed graphs that process messages, deployed and redeployed live
package wireflow

const (
	// Name identifies the service in logs and metrics
	Name = "wireflow"

	// Version is the current release of the runtime
	Version = "0.4.0"
)
