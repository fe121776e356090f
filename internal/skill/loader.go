package skill

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "Empleaido-Core/internal/errors"
)

type fileFormat struct {
	Agents []agentEntry `yaml:"agents"`
}

type agentEntry struct {
	Profile `yaml:",inline"`
	Skills  []Definition `yaml:"skills"`
}

// LoadFile 从 YAML 文件加载技能目录。
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(CodeRegistryInvalid, err, "读取技能目录失败", xerrors.WithMetadata("path", path))
	}
	return Parse(data)
}

// Parse 解析 YAML 格式的技能目录并做完整校验。
func Parse(data []byte) (*Registry, error) {
	var doc fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, xerrors.Wrap(CodeRegistryInvalid, err, "解析技能目录失败")
	}
	if len(doc.Agents) == 0 {
		return nil, xerrors.New(CodeRegistryInvalid, "技能目录为空")
	}

	seen := make(map[string]struct{}, len(doc.Agents))
	catalogs := make([]*Catalog, 0, len(doc.Agents))
	for i, entry := range doc.Agents {
		id := normalizeAgentID(entry.AgentID)
		if id == "" {
			return nil, xerrors.New(CodeRegistryInvalid, fmt.Sprintf("第 %d 个智能体缺少 id", i+1))
		}
		if _, dup := seen[id]; dup {
			return nil, xerrors.New(CodeRegistryInvalid, "重复的智能体 id: "+id)
		}
		seen[id] = struct{}{}
		if err := validateSkills(id, entry.Skills); err != nil {
			return nil, err
		}
		profile := entry.Profile
		profile.AgentID = id
		catalogs = append(catalogs, NewCatalog(profile, entry.Skills...))
	}
	return NewRegistry(catalogs...), nil
}

func validateSkills(agentID string, defs []Definition) error {
	names := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return invalid(agentID, "", "技能缺少 name")
		}
		if _, dup := names[name]; dup {
			return invalid(agentID, name, "技能名重复")
		}
		names[name] = struct{}{}
		if !def.Status.Valid() {
			return invalid(agentID, name, fmt.Sprintf("未知的状态 %q", def.Status))
		}
		if def.InputSchema == nil {
			continue
		}
		for _, field := range def.InputSchema.Required {
			if strings.TrimSpace(field) == "" {
				return invalid(agentID, name, "required 中存在空字段名")
			}
		}
		for field, fs := range def.InputSchema.Properties {
			if !fs.Type.Valid() {
				return invalid(agentID, name, fmt.Sprintf("字段 %s 的类型 %q 不受支持", field, fs.Type))
			}
		}
	}
	return nil
}

func invalid(agentID, skillName, msg string) error {
	opts := []xerrors.Option{xerrors.WithMetadata("agent_id", agentID)}
	if skillName != "" {
		opts = append(opts, xerrors.WithMetadata("skill", skillName))
		msg = skillName + ": " + msg
	}
	return xerrors.New(CodeRegistryInvalid, agentID+"/"+msg, opts...)
}
