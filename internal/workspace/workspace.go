package workspace

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"Empleaido-Core/internal/activation"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

// BootstrapFile 是引导期间存在的标记文件，完成阶段会被删除。
const BootstrapFile = "BOOTSTRAP.md"

// ToolsFile 记录智能体可用与锁定的技能，激活后一直保留。
const ToolsFile = "TOOLS.md"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("workspace").ParseFS(templateFS, "templates/*.tmpl"))

// Manager 在本地目录中维护每个激活的工作区文件。
type Manager struct {
	root string
}

var _ onboarding.Workspace = (*Manager)(nil)

// New 创建工作区管理器，root 为空时返回错误。
func New(root string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工作区目录不能为空")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析工作区目录失败")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建工作区目录失败")
	}
	return &Manager{root: abs}, nil
}

// Dir 返回激活对应的工作区目录。
func (m *Manager) Dir(state *activation.State) string {
	return filepath.Join(m.root, sanitize(state.AgentID)+"-"+sanitize(state.ActivationID))
}

type bootstrapData struct {
	ActivationID string
	UserID       string
	StartedAt    string
	Profile      skill.Profile
	Native       []skill.Definition
	Locked       []skill.Definition
}

// Prepare 渲染 BOOTSTRAP.md 与 TOOLS.md。重复调用会覆盖为相同内容。
func (m *Manager) Prepare(ctx context.Context, state *activation.State, catalog *skill.Catalog) error {
	if state == nil || catalog == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工作区需要激活状态与技能目录")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := m.Dir(state)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建激活工作区失败",
			xerrors.WithMetadata("activation_id", state.ActivationID))
	}

	data := bootstrapData{
		ActivationID: state.ActivationID,
		UserID:       state.UserID,
		StartedAt:    state.StartedAt.UTC().Format(time.RFC3339),
		Profile:      catalog.Profile,
		Native:       catalog.Native(),
		Locked:       catalog.Locked(),
	}
	for name, file := range map[string]string{"BOOTSTRAP.md.tmpl": BootstrapFile, "TOOLS.md.tmpl": ToolsFile} {
		if err := render(filepath.Join(dir, file), name, data); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入工作区文件失败",
				xerrors.WithMetadata("activation_id", state.ActivationID),
				xerrors.WithMetadata("file", file))
		}
	}
	logger.Named("workspace").Debug("工作区已准备",
		slog.String("activation_id", state.ActivationID), slog.String("dir", dir))
	return nil
}

// Clear 删除 BOOTSTRAP.md。文件已不存在时视为成功。
func (m *Manager) Clear(_ context.Context, state *activation.State) error {
	if state == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工作区需要激活状态")
	}
	path := filepath.Join(m.Dir(state), BootstrapFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除引导文件失败",
			xerrors.WithMetadata("activation_id", state.ActivationID))
	}
	logger.Named("workspace").Info("引导文件已清除", slog.String("activation_id", state.ActivationID))
	return nil
}

// HasBootstrap 判断引导文件是否仍然存在。
func (m *Manager) HasBootstrap(state *activation.State) bool {
	_, err := os.Stat(filepath.Join(m.Dir(state), BootstrapFile))
	return err == nil
}

func render(path, name string, data bootstrapData) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("渲染模板 %s 失败: %w", name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
