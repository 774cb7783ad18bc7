package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/util"
)

type (
	// plan is a flow document flattened into the node instances it
	// describes. Subflow instances are expanded and every id is global
	plan struct {
		nodes  []*nodeSpec
		byID   map[api.NodeID]*nodeSpec
		scopes map[api.FlowID]*flowScope
	}

	nodeSpec struct {
		cfg         *api.NodeConfig
		localID     api.NodeID
		root        api.FlowID
		kind        nodeKind
		fingerprint string
		inputs      []api.NodeID
		port        int
	}

	// flowScope is a tab or a subflow instance. Tabs have no parent
	flowScope struct {
		id          api.FlowID
		parent      api.FlowID
		root        api.FlowID
		instance    api.NodeID
		env         map[string]string
		fingerprint string
	}

	nodeKind int

	planner struct {
		*plan
		templates map[api.NodeID]*template
	}

	template struct {
		cfg         *api.NodeConfig
		members     []*api.NodeConfig
		in          []portWires
		out         []portWires
		fingerprint string
	}

	portWires struct {
		Wires []portTarget `json:"wires"`
	}

	portTarget struct {
		ID   api.NodeID `json:"id"`
		Port int        `json:"port"`
	}
)

const (
	kindRegular nodeKind = iota
	kindInstance
	kindOutput
)

const (
	// TypeSubflowOutput is the type of the virtual nodes that carry a
	// subflow instance's output ports
	TypeSubflowOutput = "subflow-output"

	scopeSeparator = "/"
	outputSegment  = "out"
)

var (
	ErrSubflowRecursion = errors.New("subflow instantiates itself")
	ErrDuplicateNodeID  = errors.New("duplicate node id")
)

func buildPlan(flows api.FlowSet) (*plan, error) {
	p := &planner{
		plan: &plan{
			byID:   map[api.NodeID]*nodeSpec{},
			scopes: map[api.FlowID]*flowScope{},
		},
		templates: map[api.NodeID]*template{},
	}

	seen := make(util.Set[api.NodeID], len(flows))
	for _, cfg := range flows {
		if !seen.Add(cfg.ID) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, cfg.ID)
		}
	}

	if err := p.collectTemplates(flows); err != nil {
		return nil, err
	}

	for _, cfg := range flows {
		if cfg.Type != api.TypeTab || cfg.Disabled || cfg.Bool("disabled") {
			continue
		}
		id := api.FlowID(cfg.ID)
		p.scopes[id] = &flowScope{
			id:          id,
			root:        id,
			env:         api.EnvMap(cfg.Env),
			fingerprint: cfg.Fingerprint(),
		}
	}

	for _, cfg := range flows {
		scope, ok := p.scopes[cfg.Z]
		if !ok || scope.instance != "" || cfg.Disabled || isContainer(cfg) {
			continue
		}
		if err := p.addNode(cfg, scope, "", nil, nil); err != nil {
			return nil, err
		}
	}
	return p.plan, nil
}

func (p *planner) collectTemplates(flows api.FlowSet) error {
	for _, cfg := range flows {
		if cfg.Type != api.TypeSubflow {
			continue
		}
		var ports struct {
			In  []portWires `json:"in"`
			Out []portWires `json:"out"`
		}
		if err := cfg.Decode(&ports); err != nil {
			return fmt.Errorf("subflow %s: %w", cfg.ID, err)
		}
		p.templates[cfg.ID] = &template{
			cfg: cfg,
			in:  ports.In,
			out: ports.Out,
		}
	}

	for _, cfg := range flows {
		if t, ok := p.templates[api.NodeID(cfg.Z)]; ok && !isContainer(cfg) {
			t.members = append(t.members, cfg)
		}
	}

	for _, t := range p.templates {
		h := sha256.New()
		h.Write([]byte(t.cfg.Fingerprint()))
		for _, m := range t.members {
			wires, _ := json.Marshal(m.Wires)
			h.Write([]byte(m.Fingerprint()))
			h.Write(wires)
		}
		t.fingerprint = hex.EncodeToString(h.Sum(nil))
	}
	return nil
}

// addNode plans one configured node inside scope. prefix is the id of the
// enclosing subflow instance, empty at the top level. extra holds already
// global targets appended to the node's ports
func (p *planner) addNode(
	cfg *api.NodeConfig, scope *flowScope, prefix string,
	stack []api.NodeID, extra [][]api.NodeID,
) error {
	spec := &nodeSpec{
		cfg:     localize(cfg, scope.id, prefix),
		localID: cfg.ID,
		root:    scope.root,
		kind:    kindRegular,
	}
	if extra != nil {
		spec.cfg.Wires = mergePorts(spec.cfg.Wires, extra)
	}

	if tplID, ok := strings.CutPrefix(cfg.Type, api.SubflowPrefix); ok {
		if t, ok := p.templates[api.NodeID(tplID)]; ok {
			return p.instantiate(spec, t, scope, stack)
		}
	}

	spec.fingerprint = spec.cfg.Fingerprint() + scope.fingerprint
	p.add(spec)
	return nil
}

func (p *planner) instantiate(
	spec *nodeSpec, t *template, parent *flowScope, stack []api.NodeID,
) error {
	for _, id := range stack {
		if id == t.cfg.ID {
			return fmt.Errorf("%w: %s", ErrSubflowRecursion, t.cfg.ID)
		}
	}
	stack = append(stack, t.cfg.ID)

	instID := spec.cfg.ID
	prefix := string(instID)
	scopeID := api.FlowID(instID)

	env := api.EnvMap(t.cfg.Env)
	for k, v := range api.EnvMap(spec.cfg.Env) {
		env[k] = v
	}
	scope := &flowScope{
		id:       scopeID,
		parent:   parent.id,
		root:     parent.root,
		instance: instID,
		env:      env,
		fingerprint: parent.fingerprint + spec.cfg.Fingerprint() +
			t.fingerprint,
	}
	p.scopes[scopeID] = scope

	spec.kind = kindInstance
	spec.fingerprint = scope.fingerprint
	if len(t.in) > 0 {
		spec.inputs = globalTargets(t.in[0].Wires, prefix, t.cfg.ID)
	}
	p.add(spec)

	members := make(map[api.NodeID]*api.NodeConfig, len(t.members))
	for _, m := range t.members {
		members[m.ID] = m
	}

	outputs := make(map[api.NodeID][][]api.NodeID, len(t.members))
	for i, port := range t.out {
		outID := outputID(instID, i)
		var wires [][]api.NodeID
		if i < len(spec.cfg.Wires) {
			wires = [][]api.NodeID{spec.cfg.Wires[i]}
		}
		p.add(&nodeSpec{
			cfg: &api.NodeConfig{
				ID:    outID,
				Type:  TypeSubflowOutput,
				Z:     scopeID,
				Wires: wires,
			},
			localID:     outID,
			root:        parent.root,
			kind:        kindOutput,
			fingerprint: scope.fingerprint,
			port:        i,
		})
		for _, w := range port.Wires {
			if w.ID == t.cfg.ID {
				spec.inputs = append(spec.inputs, outID)
				continue
			}
			if m, ok := members[w.ID]; ok && !m.Disabled {
				outputs[w.ID] = appendPort(outputs[w.ID], w.Port, outID)
			}
		}
	}

	for _, m := range t.members {
		if m.Disabled {
			continue
		}
		err := p.addNode(m, scope, prefix, stack, outputs[m.ID])
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) add(spec *nodeSpec) {
	p.nodes = append(p.nodes, spec)
	p.byID[spec.cfg.ID] = spec
}

// localize returns a copy of cfg with its id, flow and wires rewritten
// into the global id space of an enclosing subflow instance
func localize(
	cfg *api.NodeConfig, scope api.FlowID, prefix string,
) *api.NodeConfig {
	cp := *cfg
	cp.Z = scope
	if prefix == "" {
		return &cp
	}
	cp.ID = globalID(prefix, cfg.ID)
	cp.Wires = make([][]api.NodeID, len(cfg.Wires))
	for i, port := range cfg.Wires {
		res := make([]api.NodeID, len(port))
		for j, id := range port {
			res[j] = globalID(prefix, id)
		}
		cp.Wires[i] = res
	}
	return &cp
}

func globalTargets(
	wires []portTarget, prefix string, tplID api.NodeID,
) []api.NodeID {
	res := make([]api.NodeID, 0, len(wires))
	for _, w := range wires {
		if w.ID == tplID {
			continue
		}
		res = append(res, globalID(prefix, w.ID))
	}
	return res
}

func globalID(prefix string, id api.NodeID) api.NodeID {
	return api.NodeID(prefix + scopeSeparator + string(id))
}

func outputID(inst api.NodeID, port int) api.NodeID {
	return api.NodeID(strings.Join([]string{
		string(inst), outputSegment, strconv.Itoa(port),
	}, scopeSeparator))
}

func appendPort(
	ports [][]api.NodeID, port int, id api.NodeID,
) [][]api.NodeID {
	for len(ports) <= port {
		ports = append(ports, nil)
	}
	ports[port] = append(ports[port], id)
	return ports
}

func mergePorts(base, extra [][]api.NodeID) [][]api.NodeID {
	res := make([][]api.NodeID, max(len(base), len(extra)))
	for i := range res {
		if i < len(base) {
			res[i] = append(res[i], base[i]...)
		}
		if i < len(extra) {
			res[i] = append(res[i], extra[i]...)
		}
	}
	return res
}

func isContainer(cfg *api.NodeConfig) bool {
	return cfg.Type == api.TypeTab || cfg.Type == api.TypeSubflow
}
