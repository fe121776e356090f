package skill

import (
	"sort"
	"strings"
)

// Status 表示技能当前是否可用。
type Status string

const (
	// StatusNative 表示技能包含在当前套餐中。
	StatusNative Status = "native"
	// StatusLocked 表示技能需要升级后才能使用。
	StatusLocked Status = "locked"
)

// Valid 判断状态是否为已知取值。
func (s Status) Valid() bool {
	return s == StatusNative || s == StatusLocked
}

// FieldType 是输入字段允许的基本类型。
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Valid 判断字段类型是否受支持。
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// FieldSchema 描述单个输入字段。
type FieldSchema struct {
	Type FieldType `json:"type" yaml:"type"`
}

// Schema 描述技能的输入约束。
type Schema struct {
	Required   []string               `json:"required,omitempty" yaml:"required"`
	Properties map[string]FieldSchema `json:"properties,omitempty" yaml:"properties"`
}

// PropertyNames 按字典序返回声明过类型的字段名。
func (s *Schema) PropertyNames() []string {
	if s == nil || len(s.Properties) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition 是技能目录中的一条静态记录。
type Definition struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Status      Status  `json:"status" yaml:"status"`
	Critical    bool    `json:"critical" yaml:"critical"`
	InputSchema *Schema `json:"input_schema,omitempty" yaml:"input_schema"`
}

// Locked 判断技能是否被锁定。
func (d Definition) Locked() bool {
	return d.Status == StatusLocked
}

// Traits 是智能体类型固定的行为特征。
type Traits struct {
	Proactive  bool `json:"proactive" yaml:"proactive"`
	Structured bool `json:"structured" yaml:"structured"`
	Analytical bool `json:"analytical" yaml:"analytical"`
	Protective bool `json:"protective" yaml:"protective"`
	Empathetic bool `json:"empathetic" yaml:"empathetic"`
	Creative   bool `json:"creative" yaml:"creative"`
}

// Profile 描述智能体类型的身份信息，在激活时一次性解析。
type Profile struct {
	AgentID     string   `json:"agent_id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Specialty   string   `json:"specialty" yaml:"specialty"`
	Sephirah    string   `json:"sephirah" yaml:"sephirah"`
	Traits      Traits   `json:"traits" yaml:"traits"`
	TraitLabels []string `json:"trait_labels" yaml:"trait_labels"`
}

// ShortName 返回不带编号的显示名称，例如 "SERA"。
func (p Profile) ShortName() string {
	name := strings.TrimSpace(p.DisplayName)
	if idx := strings.Index(name, " #"); idx > 0 {
		return name[:idx]
	}
	if name == "" {
		return strings.ToUpper(p.AgentID)
	}
	return name
}

// Catalog 是单个智能体类型的技能表。
type Catalog struct {
	Profile Profile
	order   []string
	skills  map[string]Definition
}

// NewCatalog 按声明顺序构造技能表。重复的技能名以后者为准。
func NewCatalog(profile Profile, defs ...Definition) *Catalog {
	c := &Catalog{Profile: profile, skills: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if _, exists := c.skills[def.Name]; !exists {
			c.order = append(c.order, def.Name)
		}
		c.skills[def.Name] = def
	}
	return c
}

// Skill 返回指定技能。
func (c *Catalog) Skill(name string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	def, ok := c.skills[name]
	return def, ok
}

// Names 以声明顺序返回全部技能名，不区分锁定状态。
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Native 返回当前可用的技能。
func (c *Catalog) Native() []Definition {
	return c.filter(StatusNative)
}

// Locked 返回需要升级的技能。
func (c *Catalog) Locked() []Definition {
	return c.filter(StatusLocked)
}

// NativeNames 返回可用技能名。
func (c *Catalog) NativeNames() []string {
	native := c.Native()
	names := make([]string, 0, len(native))
	for _, def := range native {
		names = append(names, def.Name)
	}
	return names
}

// Definitions 以声明顺序返回全部技能定义。
func (c *Catalog) Definitions() []Definition {
	if c == nil {
		return nil
	}
	defs := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.skills[name])
	}
	return defs
}

func (c *Catalog) filter(status Status) []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		if def := c.skills[name]; def.Status == status {
			out = append(out, def)
		}
	}
	return out
}
