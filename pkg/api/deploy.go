package api

import (
	"bytes"
	"encoding/json"
	"errors"
)

type (
	// DeploymentType selects which running nodes a deploy restarts
	DeploymentType string

	// DeployRequest is the body of a deploy. Clients may post either a
	// bare flow array or an object carrying the expected revision
	DeployRequest struct {
		Flows FlowSet `json:"flows"`
		Rev   string  `json:"rev,omitempty"`
	}

	// DeployResponse reports the revision now running
	DeployResponse struct {
		Rev string `json:"rev"`
	}

	// FlowState is the stored flow document and its revision
	FlowState struct {
		Flows FlowSet `json:"flows"`
		Rev   string  `json:"rev"`
	}

	// ErrorResponse is the JSON body of every failed admin request
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// NodeTypesResponse lists the registered node types
	NodeTypesResponse struct {
		Types []string `json:"types"`
		Count int      `json:"count"`
	}

	// HealthResponse is returned by the health endpoint
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
		Rev     string `json:"rev,omitempty"`
		Nodes   int    `json:"nodes"`
		Failed  int    `json:"failed"`
	}
)

const (
	DeployFull   DeploymentType = "full"
	DeployFlows  DeploymentType = "flows"
	DeployNodes  DeploymentType = "nodes"
	DeployReload DeploymentType = "reload"

	// DeploymentTypeHeader carries the deployment type on POST /flows
	DeploymentTypeHeader = "Node-RED-Deployment-Type"
)

var ErrUnknownDeploymentType = errors.New("unknown deployment type")

// ParseDeploymentType validates a deployment type, defaulting to full
func ParseDeploymentType(s string) (DeploymentType, error) {
	switch t := DeploymentType(s); t {
	case "":
		return DeployFull, nil
	case DeployFull, DeployFlows, DeployNodes, DeployReload:
		return t, nil
	default:
		return "", ErrUnknownDeploymentType
	}
}

// UnmarshalJSON accepts both a bare array and the {flows, rev} object
func (r *DeployRequest) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var flows FlowSet
		if err := json.Unmarshal(trimmed, &flows); err != nil {
			return err
		}
		*r = DeployRequest{Flows: flows}
		return nil
	}
	type plain DeployRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = DeployRequest(p)
	return nil
}
