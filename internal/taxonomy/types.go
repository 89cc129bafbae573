package taxonomy

// Technique describes one MITRE ATT&CK (sub-)technique in Chainsaw's
// built-in technique catalog: where it sits in the tactic/technique
// hierarchy, documentation a triager reads while working a hunt result,
// and the artefact kinds and rule IDs that commonly surface it.
type Technique struct {
	ID             string            `yaml:"id"` // ATT&CK ID, e.g. "T1070.004"
	Version        string            `yaml:"version"`
	Tactic         string            `yaml:"tactic"` // e.g. "Defense Evasion"
	TacticID       int               `yaml:"tactic_id"`
	TechniqueGroup string            `yaml:"technique_group"` // parent technique name, e.g. "Indicator Removal"
	GroupID        string            `yaml:"group_id"`        // parent technique ID, e.g. "T1070"
	Name           string            `yaml:"name"`            // (sub-)technique display name
	RiskLevel      string            `yaml:"risk_level"`      // "critical", "high", "medium", "low"
	Abstract       string            `yaml:"abstract"`
	Explanation    string            `yaml:"explanation"`
	Recommendation string            `yaml:"recommendation"`
	Examples       TechniqueExamples `yaml:"examples"`
	References     TechniqueRefs     `yaml:"references"`
	Artefacts      []string          `yaml:"artefacts"`     // artefact kinds this technique is typically observed in, e.g. "evtx", "hive", "srum"
	RelatedRules   []string          `yaml:"related_rules"` // rule IDs in this catalog known to detect it
}

// TechniqueExamples holds illustrative log lines or command lines for a
// technique: ones an analyst should treat as evidence, and benign
// look-alikes that commonly cause false positives.
type TechniqueExamples struct {
	Malicious []string `yaml:"malicious"`
	Benign    []string `yaml:"benign"`
}

// TechniqueRefs holds external references for a technique.
type TechniqueRefs struct {
	MitreAttack []string      `yaml:"mitre_attack"` // attack.mitre.org URLs
	DataSources []string      `yaml:"data_sources"` // ATT&CK data source names, e.g. "Windows Registry Key Modification"
	External    []ExternalRef `yaml:"external"`
}

// ExternalRef is a link to an external resource (blog post, vendor writeup, etc.).
type ExternalRef struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// TacticDef defines a top-level ATT&CK tactic.
type TacticDef struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// GroupDef defines a parent technique grouping within a tactic (the
// directory level between a tactic and its individual sub-techniques).
type GroupDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	TacticID    int    `yaml:"tactic_id"`
	Description string `yaml:"description"`
}

// Tactics is the top-level YAML structure for tactics.yaml.
type Tactics struct {
	Tactics []TacticDef `yaml:"tactics"`
}
