package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultRulesYAML ships a starter rule set covering the common baseline
// checks. Operators replace or extend it by dropping documents into the
// policies directory.
const defaultRulesYAML = `# diagramforge policy rules
rules:
  - id: SEC-001
    category: security
    severity: critical
    description: Storage must be encrypted at rest
    condition: component has no encryption_at_rest property or it is false
    applies_to: [storage account, data lake]
    fixable: true
    fix:
      description: Enable encryption at rest
      set:
        encryption_at_rest: true

  - id: SEC-002
    category: security
    severity: critical
    description: Services must authenticate with managed identities
    condition: component has no managed_identity property or it is false
    applies_to: [app service, functions, kubernetes service, virtual machine]
    fixable: true
    fix:
      description: Enable a system-assigned managed identity
      set:
        managed_identity: true

  - id: SEC-003
    category: security
    severity: warning
    description: Secrets must live in a key vault
    condition: architecture with compute components has no key vault
    environments: [staging, prod]

  - id: NET-001
    category: networking
    severity: critical
    description: PaaS services must use private endpoints
    condition: component is reachable without a private endpoint
    applies_to: [sql database, storage account, cosmos db, key vault]
    environments: [prod]
    fixable: true
    fix:
      description: Require a private endpoint
      set:
        public_network_access: false
        private_endpoint: true

  - id: NET-002
    category: networking
    severity: warning
    description: Subnets need a network security group
    condition: virtual network subnet has no associated nsg
    applies_to: [virtual network]

  - id: GOV-001
    category: governance
    severity: warning
    description: Resources must carry owner and cost-center tags
    condition: component has no tags property with owner and cost_center keys
    fixable: true
    fix:
      description: Apply the default tag set
      set:
        tags:
          owner: platform-team
          cost_center: unassigned

  - id: AVL-001
    category: availability
    severity: critical
    description: Production compute must span availability zones
    condition: compute component has no zone_redundant property or it is false
    applies_to: [app service, kubernetes service, virtual machine]
    environments: [prod]
    fixable: true
    fix:
      description: Enable zone redundancy
      set:
        zone_redundant: true

  - id: CST-001
    category: cost
    severity: warning
    description: Development VMs should auto-shutdown out of hours
    condition: virtual machine has no auto_shutdown schedule
    applies_to: [virtual machine]
    environments: [dev]
    fixable: true
    fix:
      description: Schedule auto-shutdown at 19:00
      set:
        auto_shutdown: "19:00"
`

const defaultRulesFile = "default.yaml"

// Default returns the built-in rule set.
func Default() (*Set, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal([]byte(defaultRulesYAML), &doc); err != nil {
		return nil, fmt.Errorf("policy: parse built-in rules: %w", err)
	}
	return NewSet(doc.Rules)
}

// EnsureDefaultRules writes the built-in rule document into dir when the
// directory is empty or missing, so a fresh install has a working policy
// set the operator can edit.
func EnsureDefaultRules(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("policy: ensure rules dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("policy: read rules dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return nil
		}
	}
	path := filepath.Join(dir, defaultRulesFile)
	if err := os.WriteFile(path, []byte(defaultRulesYAML), 0o644); err != nil {
		return fmt.Errorf("policy: write default rules: %w", err)
	}
	return nil
}
