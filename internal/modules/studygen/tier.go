package studygen

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DepthModels selects the generation models for one recursion depth.
// MapModel runs the per-chunk calls, ReduceModel the curation/synthesis call.
type DepthModels struct {
	MapModel    string `yaml:"map_model"`
	ReduceModel string `yaml:"reduce_model"`
}

// TokenEstimation holds the heuristic ratios for char-based token estimates.
type TokenEstimation struct {
	CharsPerToken      float64 `yaml:"chars_per_token"`
	OverheadMultiplier float64 `yaml:"overhead_multiplier"`
}

// TierPolicy is the per-request policy bundle. Resolved once per request and
// immutable for the request's lifetime.
type TierPolicy struct {
	Name          string        `yaml:"-"`
	Threshold     int           `yaml:"threshold"`
	ChunkSize     int           `yaml:"chunk_size"`
	MaxDepth      int           `yaml:"max_depth"`
	MaxChunks     int           `yaml:"max_chunks"`
	ParallelLimit int           `yaml:"parallel_limit"`
	ModelsByDepth []DepthModels `yaml:"models_by_depth"`
	DefaultModel  string        `yaml:"default_model"`
	FallbackModel string        `yaml:"fallback_model"`

	TokenEstimation TokenEstimation `yaml:"token_estimation"`

	// Expected shrink factor of one summarization round, > 1. Deeper recursion
	// tolerates proportionally larger raw input when computing the ceiling.
	SummarizationCompression float64 `yaml:"summarization_compression"`
}

// ModelsForDepth resolves the model pair for a depth with a single documented
// precedence order:
//  1. the exact configured depth entry,
//  2. otherwise the last configured entry,
//  3. otherwise the tier default model for both phases.
//
// Within the chosen entry, an empty MapModel falls back to DefaultModel and an
// empty ReduceModel falls back to the entry's MapModel.
func (p TierPolicy) ModelsForDepth(depth int) DepthModels {
	if depth < 0 {
		depth = 0
	}
	var m DepthModels
	switch {
	case depth < len(p.ModelsByDepth):
		m = p.ModelsByDepth[depth]
	case len(p.ModelsByDepth) > 0:
		m = p.ModelsByDepth[len(p.ModelsByDepth)-1]
	}
	if strings.TrimSpace(m.MapModel) == "" {
		m.MapModel = p.DefaultModel
	}
	if strings.TrimSpace(m.ReduceModel) == "" {
		m.ReduceModel = m.MapModel
	}
	return m
}

func (p TierPolicy) withDefaults() TierPolicy {
	if p.Threshold <= 0 {
		p.Threshold = 25000
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 8000
	}
	if p.MaxDepth < 0 {
		p.MaxDepth = 0
	}
	if p.MaxChunks <= 0 {
		p.MaxChunks = 50
	}
	if p.ParallelLimit <= 0 {
		p.ParallelLimit = 10
	}
	if p.TokenEstimation.CharsPerToken <= 0 {
		p.TokenEstimation.CharsPerToken = 4
	}
	if p.TokenEstimation.OverheadMultiplier <= 0 {
		p.TokenEstimation.OverheadMultiplier = 1.1
	}
	if p.SummarizationCompression <= 1 {
		p.SummarizationCompression = 3
	}
	if strings.TrimSpace(p.DefaultModel) == "" {
		p.DefaultModel = "gpt-4o-mini"
	}
	if strings.TrimSpace(p.FallbackModel) == "" {
		p.FallbackModel = "gpt-4o"
	}
	return p
}

// BaselineTier is the tier used when a request names no tier or an unknown one.
const BaselineTier = "standard"

// DefaultPolicies returns the compiled-in tier table used when no policy file
// is configured.
func DefaultPolicies() map[string]TierPolicy {
	free := TierPolicy{
		Threshold:     12000,
		ChunkSize:     6000,
		MaxDepth:      1,
		MaxChunks:     20,
		ParallelLimit: 5,
		ModelsByDepth: []DepthModels{
			{MapModel: "gpt-4o-mini", ReduceModel: "gpt-4o-mini"},
		},
	}.withDefaults()

	standard := TierPolicy{
		Threshold:     25000,
		ChunkSize:     8000,
		MaxDepth:      1,
		MaxChunks:     50,
		ParallelLimit: 10,
		ModelsByDepth: []DepthModels{
			{MapModel: "gpt-4o-mini", ReduceModel: "gpt-4o"},
			{MapModel: "gpt-4o-mini", ReduceModel: "gpt-4o-mini"},
		},
	}.withDefaults()

	pro := TierPolicy{
		Threshold:     40000,
		ChunkSize:     12000,
		MaxDepth:      2,
		MaxChunks:     80,
		ParallelLimit: 10,
		ModelsByDepth: []DepthModels{
			{MapModel: "gpt-4o", ReduceModel: "gpt-4o"},
			{MapModel: "gpt-4o-mini", ReduceModel: "gpt-4o-mini"},
		},
	}.withDefaults()

	return map[string]TierPolicy{
		"free":     free,
		"standard": standard,
		"pro":      pro,
	}
}

// PolicySource resolves a tier name to its policy. The boolean reports whether
// the name matched exactly; on a miss the baseline policy is returned.
type PolicySource interface {
	Resolve(tier string) (TierPolicy, bool)
}

type StaticPolicySource struct {
	policies map[string]TierPolicy
	baseline string
}

func NewStaticPolicySource(policies map[string]TierPolicy, baseline string) (*StaticPolicySource, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("policy source: no tiers configured")
	}
	baseline = strings.ToLower(strings.TrimSpace(baseline))
	if baseline == "" {
		baseline = BaselineTier
	}
	normalized := make(map[string]TierPolicy, len(policies))
	for name, p := range policies {
		key := strings.ToLower(strings.TrimSpace(name))
		p.Name = key
		normalized[key] = p.withDefaults()
	}
	if _, ok := normalized[baseline]; !ok {
		return nil, fmt.Errorf("policy source: baseline tier %q not configured", baseline)
	}
	return &StaticPolicySource{policies: normalized, baseline: baseline}, nil
}

func (s *StaticPolicySource) Resolve(tier string) (TierPolicy, bool) {
	key := strings.ToLower(strings.TrimSpace(tier))
	if p, ok := s.policies[key]; ok {
		return p, true
	}
	return s.policies[s.baseline], false
}

type policyFile struct {
	Baseline string                `yaml:"baseline"`
	Tiers    map[string]TierPolicy `yaml:"tiers"`
}

// LoadPolicyFile reads a tier table from a YAML file. Missing fields fall back
// to the same defaults as the compiled-in table.
func LoadPolicyFile(path string) (map[string]TierPolicy, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, "", fmt.Errorf("parse policy file: %w", err)
	}
	if len(pf.Tiers) == 0 {
		return nil, "", fmt.Errorf("policy file %s: no tiers defined", path)
	}
	return pf.Tiers, pf.Baseline, nil
}
