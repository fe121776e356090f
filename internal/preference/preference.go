package preference

import "context"

// 取值常量。未识别的字段保持为空字符串。
const (
	LanguageSpanish = "spanish"
	LanguageEnglish = "english"
	LanguageMixed   = "mixed"

	FormalityFormal = "formal"
	FormalityCasual = "casual"

	ProactivityLow    = "low"
	ProactivityMedium = "medium"
	ProactivityHigh   = "high"

	StyleConcise        = "concise"
	StyleDetailed       = "detailed"
	StyleConversational = "conversational"

	WorkFreelancer = "freelancer"
	WorkBusiness   = "business"
	WorkEmployee   = "employee"

	RegimeSimplified = "simplified"
	RegimeNormal     = "normal"
)

// Field 是偏好字段名，与 JSON 键一致。
type Field string

const (
	FieldLanguage           Field = "language"
	FieldFormality          Field = "formality"
	FieldProactivityLevel   Field = "proactivity_level"
	FieldCommunicationStyle Field = "communication_style"
	FieldWorkType           Field = "work_type"
	FieldDomainRegime       Field = "domain_regime"
)

// Fields 以固定顺序列出全部偏好字段。
var Fields = []Field{
	FieldLanguage, FieldFormality, FieldProactivityLevel,
	FieldCommunicationStyle, FieldWorkType, FieldDomainRegime,
}

var allowed = map[Field][]string{
	FieldLanguage:           {LanguageSpanish, LanguageEnglish, LanguageMixed},
	FieldFormality:          {FormalityFormal, FormalityCasual},
	FieldProactivityLevel:   {ProactivityLow, ProactivityMedium, ProactivityHigh},
	FieldCommunicationStyle: {StyleConcise, StyleDetailed, StyleConversational},
	FieldWorkType:           {WorkFreelancer, WorkBusiness, WorkEmployee},
	FieldDomainRegime:       {RegimeSimplified, RegimeNormal},
}

// Patch 是一次推断得到的部分偏好，空字段表示没有信号。
type Patch struct {
	Language           string `json:"language,omitempty"`
	Formality          string `json:"formality,omitempty"`
	ProactivityLevel   string `json:"proactivity_level,omitempty"`
	CommunicationStyle string `json:"communication_style,omitempty"`
	WorkType           string `json:"work_type,omitempty"`
	DomainRegime       string `json:"domain_regime,omitempty"`
}

// Empty 判断补丁是否不包含任何字段。
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Get 返回指定字段的值。
func (p Patch) Get(f Field) string {
	switch f {
	case FieldLanguage:
		return p.Language
	case FieldFormality:
		return p.Formality
	case FieldProactivityLevel:
		return p.ProactivityLevel
	case FieldCommunicationStyle:
		return p.CommunicationStyle
	case FieldWorkType:
		return p.WorkType
	case FieldDomainRegime:
		return p.DomainRegime
	}
	return ""
}

func (p *Patch) set(f Field, v string) {
	switch f {
	case FieldLanguage:
		p.Language = v
	case FieldFormality:
		p.Formality = v
	case FieldProactivityLevel:
		p.ProactivityLevel = v
	case FieldCommunicationStyle:
		p.CommunicationStyle = v
	case FieldWorkType:
		p.WorkType = v
	case FieldDomainRegime:
		p.DomainRegime = v
	}
}

// Sanitize 丢弃不在允许取值范围内的字段。
func (p Patch) Sanitize() Patch {
	var out Patch
	for _, f := range Fields {
		v := p.Get(f)
		for _, ok := range allowed[f] {
			if v == ok {
				out.set(f, v)
				break
			}
		}
	}
	return out
}

// Preferences 是激活过程中累积的用户偏好。
// Confirmed 记录由用户显式确认的字段，推断结果不会覆盖这些字段。
type Preferences struct {
	Patch
	Confirmed []Field `json:"confirmed,omitempty"`
}

// Merge 以逐字段后写优先的方式合并推断结果，已确认字段保持不变。
// 返回值表示是否有字段发生变化。
func (p *Preferences) Merge(patch Patch) bool {
	changed := false
	for _, f := range Fields {
		v := patch.Get(f)
		if v == "" || p.isConfirmed(f) || p.Get(f) == v {
			continue
		}
		p.set(f, v)
		changed = true
	}
	return changed
}

// Confirm 写入用户显式提供的偏好并标记为已确认。
func (p *Preferences) Confirm(patch Patch) bool {
	changed := false
	for _, f := range Fields {
		v := patch.Get(f)
		if v == "" {
			continue
		}
		if p.Get(f) != v {
			p.set(f, v)
			changed = true
		}
		if !p.isConfirmed(f) {
			p.Confirmed = append(p.Confirmed, f)
			changed = true
		}
	}
	return changed
}

// Clone 返回深拷贝。
func (p Preferences) Clone() Preferences {
	out := p
	if p.Confirmed != nil {
		out.Confirmed = append([]Field(nil), p.Confirmed...)
	}
	return out
}

// English 判断回复是否应使用英文模板。
func (p Preferences) English() bool {
	return p.Language == LanguageEnglish
}

func (p Preferences) isConfirmed(f Field) bool {
	for _, c := range p.Confirmed {
		if c == f {
			return true
		}
	}
	return false
}

// Extractor 把一段自由文本映射为部分偏好。没有信号时返回空补丁而不是错误。
type Extractor interface {
	Extract(ctx context.Context, text string) (Patch, error)
}
