package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fleetline.yml.
type Config struct {
	Fleet struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"fleet"`
	Checklists map[string]CategoryChecklists `yaml:"checklists"`
	Scoring    ScoringSection                `yaml:"scoring"`
	Webhooks   []WebhookConfig               `yaml:"webhooks"`
	RBAC       struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

// CategoryChecklists holds the checklist templates for one asset category.
type CategoryChecklists struct {
	Daily   []TemplateItem `yaml:"daily"`
	Monthly []TemplateItem `yaml:"monthly"`
}

type TemplateItem struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

type ScoringSection struct {
	Weights struct {
		Document    float64 `yaml:"document"`
		Inspection  float64 `yaml:"inspection"`
		Maintenance float64 `yaml:"maintenance"`
		Defect      float64 `yaml:"defect"`
	} `yaml:"weights"`
	MaintenancePenalties map[string]float64 `yaml:"maintenance_penalties"`
	DefectPenalties      map[string]float64 `yaml:"defect_penalties"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

var knownCategories = map[string]bool{
	"vehicle":           true,
	"equipment":         true,
	"power_tool":        true,
	"lifting_accessory": true,
}

var knownSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with fl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Fleet.ID == "" {
		return fmt.Errorf("config.fleet.id is required")
	}
	if len(c.Checklists) == 0 {
		return fmt.Errorf("config.checklists is required")
	}
	for category, lists := range c.Checklists {
		if !knownCategories[category] {
			return fmt.Errorf("unknown asset category %s in checklists", category)
		}
		for kind, items := range map[string][]TemplateItem{"daily": lists.Daily, "monthly": lists.Monthly} {
			seen := map[string]bool{}
			for _, item := range items {
				if item.ID == "" {
					return fmt.Errorf("%s %s checklist has item with empty id", category, kind)
				}
				if item.Description == "" {
					return fmt.Errorf("%s %s checklist item %s has empty description", category, kind, item.ID)
				}
				if seen[item.ID] {
					return fmt.Errorf("%s %s checklist has duplicate item id %s", category, kind, item.ID)
				}
				seen[item.ID] = true
			}
		}
	}
	w := c.Scoring.Weights
	for name, v := range map[string]float64{
		"document": w.Document, "inspection": w.Inspection,
		"maintenance": w.Maintenance, "defect": w.Defect,
	} {
		if v < 0 {
			return fmt.Errorf("config.scoring.weights.%s is negative", name)
		}
	}
	if sum := w.Document + w.Inspection + w.Maintenance + w.Defect; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("config.scoring.weights must sum to 1, got %v", sum)
	}
	for table, m := range map[string]map[string]float64{
		"maintenance_penalties": c.Scoring.MaintenancePenalties,
		"defect_penalties":      c.Scoring.DefectPenalties,
	} {
		for severity, penalty := range m {
			if !knownSeverities[severity] {
				return fmt.Errorf("config.scoring.%s has unknown severity %s", table, severity)
			}
			if penalty < 0 {
				return fmt.Errorf("config.scoring.%s.%s is negative", table, severity)
			}
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["manager"]; !ok {
			return fmt.Errorf("config.rbac.roles must include manager")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// TemplateFor returns the checklist template for a category and inspection
// kind, or nil when none is configured.
func (c *Config) TemplateFor(category, kind string) []TemplateItem {
	lists, ok := c.Checklists[category]
	if !ok {
		return nil
	}
	switch kind {
	case "monthly":
		return lists.Monthly
	default:
		return lists.Daily
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fleetline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(fleetID string) string {
	return fmt.Sprintf(defaultTemplate, fleetID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a fleet.
func Default(fleetID string) *Config {
	var cfg Config
	cfg.Fleet.ID = fleetID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, fleetID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `fleet:
  id: %s
  name: Default Fleet

checklists:
  vehicle:
    daily:
      - {id: veh.tires, description: "Tires and wheels free of damage", required: true}
      - {id: veh.lights, description: "Lights and indicators operational", required: true}
      - {id: veh.brakes, description: "Brakes respond correctly", required: true}
      - {id: veh.fluids, description: "Fluid levels within range", required: true}
      - {id: veh.horn, description: "Horn works", required: true}
      - {id: veh.mirrors, description: "Mirrors clean and adjusted", required: true}
      - {id: veh.seatbelt, description: "Seat belts latch and retract", required: true}
      - {id: veh.damage, description: "No new body damage", required: true}
      - {id: veh.cabin, description: "Cabin clean, no loose items", required: false}
    monthly:
      - {id: veh.engine, description: "Engine bay inspection", required: true}
      - {id: veh.suspension, description: "Suspension and steering check", required: true}
      - {id: veh.underbody, description: "Underbody corrosion check", required: true}
      - {id: veh.service, description: "Service sticker current", required: false}
  equipment:
    daily:
      - {id: eq.guards, description: "Guards and shields in place", required: true}
      - {id: eq.controls, description: "Controls and e-stop functional", required: true}
      - {id: eq.leaks, description: "No hydraulic or fuel leaks", required: true}
      - {id: eq.alarms, description: "Warning alarms audible", required: true}
    monthly:
      - {id: eq.structure, description: "Structural welds and pins", required: true}
      - {id: eq.hydraulics, description: "Hydraulic hoses and fittings", required: true}
      - {id: eq.greasing, description: "Grease points serviced", required: false}
  power_tool:
    daily:
      - {id: pt.cord, description: "Cord and plug undamaged", required: true}
      - {id: pt.guard, description: "Guard present and moving freely", required: true}
      - {id: pt.switch, description: "Trigger switch cuts out", required: true}
    monthly:
      - {id: pt.tag, description: "Test tag in date", required: true}
      - {id: pt.insulation, description: "Insulation resistance tested", required: true}
  lifting_accessory:
    daily:
      - {id: la.wear, description: "No cuts, wear or deformation", required: true}
      - {id: la.marking, description: "SWL marking legible", required: true}
      - {id: la.hooks, description: "Hooks and latches close fully", required: true}
    monthly:
      - {id: la.cert, description: "Thorough examination certificate current", required: true}
      - {id: la.stretch, description: "Measured stretch within tolerance", required: true}

scoring:
  weights:
    document: 0.25
    inspection: 0.25
    maintenance: 0.25
    defect: 0.25
  maintenance_penalties:
    low: 5
    medium: 15
    high: 30
    critical: 50
  defect_penalties:
    low: 5
    medium: 15
    high: 30
    critical: 50

rbac:
  roles:
    manager:
      description: "Fleet manager"
      permissions: [fleet.admin, asset.read, asset.write, document.write, inspection.submit, maintenance.write, defect.write, compliance.read, event.read]
    technician:
      description: "Maintenance technician"
      permissions: [asset.read, inspection.submit, maintenance.write, defect.write, compliance.read]
    operator:
      description: "Equipment operator"
      permissions: [asset.read, inspection.submit, defect.write]
    viewer:
      description: "Read-only access"
      permissions: [asset.read, compliance.read, event.read]
`
