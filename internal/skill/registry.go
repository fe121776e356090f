package skill

import (
	"sort"
	"strings"

	xerrors "Empleaido-Core/internal/errors"
)

const (
	// CodeUnknownAgent 表示请求的智能体类型没有对应的技能表。
	CodeUnknownAgent xerrors.Code = "UNKNOWN_AGENT"
	// CodeSkillNotFound 表示技能不在目录中。
	CodeSkillNotFound xerrors.Code = "SKILL_NOT_FOUND"
	// CodeSkillLocked 表示技能需要升级。
	CodeSkillLocked xerrors.Code = "SKILL_LOCKED"
	// CodeRegistryInvalid 表示技能目录文件无法使用。
	CodeRegistryInvalid xerrors.Code = "REGISTRY_INVALID"
)

func init() {
	xerrors.Register(CodeUnknownAgent, xerrors.Attributes{Message: "unknown agent", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeSkillNotFound, xerrors.Attributes{Message: "skill not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeSkillLocked, xerrors.Attributes{Message: "skill requires unlock", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeRegistryInvalid, xerrors.Attributes{Message: "skill registry invalid", Severity: xerrors.SeverityCritical, Alert: true})
}

// Registry 是智能体类型到技能表的只读索引，运行期间不可变。
type Registry struct {
	catalogs map[string]*Catalog
}

// NewRegistry 根据技能表构造索引。
func NewRegistry(catalogs ...*Catalog) *Registry {
	r := &Registry{catalogs: make(map[string]*Catalog, len(catalogs))}
	for _, c := range catalogs {
		if c == nil {
			continue
		}
		r.catalogs[normalizeAgentID(c.Profile.AgentID)] = c
	}
	return r
}

// Lookup 返回指定智能体类型的技能表。
func (r *Registry) Lookup(agentID string) (*Catalog, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.catalogs[normalizeAgentID(agentID)]
	return c, ok
}

// Resolve 与 Lookup 相同，但在找不到时返回统一错误。
func (r *Registry) Resolve(agentID string) (*Catalog, error) {
	c, ok := r.Lookup(agentID)
	if !ok {
		return nil, xerrors.New(CodeUnknownAgent, "Empleaido "+agentID+" not found",
			xerrors.WithMetadata("agent_id", agentID))
	}
	return c, nil
}

// Agents 返回排序后的智能体类型列表。
func (r *Registry) Agents() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.catalogs))
	for id := range r.catalogs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeAgentID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
