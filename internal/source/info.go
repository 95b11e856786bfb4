package source

// ModelInfo contains basic information about a model without translating it.
type ModelInfo struct {
	Format          string   `json:"format" yaml:"format"`
	Signature       string   `json:"signature,omitempty" yaml:"signature,omitempty"`
	IRVersion       int64    `json:"ir_version" yaml:"ir_version"`
	OpsetVersion    int64    `json:"opset_version" yaml:"opset_version"`
	ProducerName    string   `json:"producer_name,omitempty" yaml:"producer_name,omitempty"`
	ProducerVersion string   `json:"producer_version,omitempty" yaml:"producer_version,omitempty"`
	InputNames      []string `json:"inputs" yaml:"inputs"`
	OutputNames     []string `json:"outputs" yaml:"outputs"`
	NodeCount       int      `json:"node_count" yaml:"node_count"`
	WeightCount     int      `json:"weight_count" yaml:"weight_count"`
	OpTypes         []string `json:"op_types" yaml:"op_types"`
}

// Info summarizes an opened model.
func (m *Model) Info() *ModelInfo {
	info := &ModelInfo{
		Format:      m.Format.String(),
		Signature:   m.Signature,
		InputNames:  m.Graph.Inputs(),
		OutputNames: m.Graph.Outputs(),
	}

	if p := m.Proto; p != nil {
		info.IRVersion = p.IRVersion
		info.ProducerName = p.ProducerName
		info.ProducerVersion = p.ProducerVersion
		for _, opset := range p.OpsetImport {
			if opset.Domain == "" || opset.Domain == "ai.onnx" {
				info.OpsetVersion = opset.Version
				break
			}
		}
		if p.Graph != nil {
			info.WeightCount = len(p.Graph.Initializers)
		}
	}

	seen := make(map[string]bool)
	for _, d := range m.Graph.Nodes() {
		if _, synthetic := d.(*syntheticDecoder); synthetic {
			continue
		}
		info.NodeCount++
		if !seen[d.OpType()] {
			seen[d.OpType()] = true
			info.OpTypes = append(info.OpTypes, d.OpType())
		}
	}
	return info
}
