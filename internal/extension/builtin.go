package extension

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
)

// Host types встроенных расширений.
const (
	HostTypeBuild   = "build"
	HostTypeRelease = "release"
)

// BuildExtension — расширение для build jobs.
//
// Prepare-шаг создаёт рабочую директорию job под agent.workFolder
// и публикует её в переменной agent.workingDirectory; finally-шаг
// убирает временную поддиректорию.
type BuildExtension struct{}

// NewBuildExtension создаёт расширение для build jobs.
func NewBuildExtension() *BuildExtension {
	return &BuildExtension{}
}

// HostType возвращает "build".
func (e *BuildExtension) HostType() string { return HostTypeBuild }

// PrepareStep возвращает шаг подготовки рабочей директории.
func (e *BuildExtension) PrepareStep() *StepTemplate {
	return &StepTemplate{
		Name: "Prepare workspace",
		Run:  prepareWorkspace,
	}
}

// FinallyStep возвращает шаг очистки временных файлов.
func (e *BuildExtension) FinallyStep() *StepTemplate {
	return &StepTemplate{
		Name: "Clean temp",
		Run:  cleanTemp,
	}
}

// ReleaseExtension — расширение для release jobs.
//
// Prepare-шаг создаёт директорию для артефактов релиза.
// Finally-шага нет.
type ReleaseExtension struct{}

// NewReleaseExtension создаёт расширение для release jobs.
func NewReleaseExtension() *ReleaseExtension {
	return &ReleaseExtension{}
}

// HostType возвращает "release".
func (e *ReleaseExtension) HostType() string { return HostTypeRelease }

// PrepareStep возвращает шаг подготовки директории артефактов.
func (e *ReleaseExtension) PrepareStep() *StepTemplate {
	return &StepTemplate{
		Name: "Download artifacts",
		Run:  prepareArtifacts,
	}
}

// FinallyStep возвращает nil: release jobs не требуют finally-шага.
func (e *ReleaseExtension) FinallyStep() *StepTemplate { return nil }

// prepareWorkspace создаёт рабочую директорию job.
func prepareWorkspace(_ context.Context, ec *execution.Context) error {
	workFolder, ok := ec.Variable(domain.VarAgentWorkFolder)
	if !ok || workFolder == "" {
		return fmt.Errorf("variable %s is not set", domain.VarAgentWorkFolder)
	}

	jobName, _ := ec.Variable(domain.VarAgentJobName)
	workingDir := filepath.Join(workFolder, sanitizeDirName(jobName))
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(workingDir, "_temp"), 0o755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	ec.SetJobVariable(domain.VarAgentWorkingDir, workingDir)
	return nil
}

// cleanTemp удаляет временную поддиректорию рабочей директории.
func cleanTemp(_ context.Context, ec *execution.Context) error {
	workingDir, ok := ec.Variable(domain.VarAgentWorkingDir)
	if !ok || workingDir == "" {
		// Prepare не выполнялся — чистить нечего
		return nil
	}
	if err := os.RemoveAll(filepath.Join(workingDir, "_temp")); err != nil {
		return fmt.Errorf("remove temp directory: %w", err)
	}
	return nil
}

// prepareArtifacts создаёт директорию для артефактов релиза.
func prepareArtifacts(_ context.Context, ec *execution.Context) error {
	workFolder, ok := ec.Variable(domain.VarAgentWorkFolder)
	if !ok || workFolder == "" {
		return fmt.Errorf("variable %s is not set", domain.VarAgentWorkFolder)
	}

	artifactsDir := filepath.Join(workFolder, "_artifacts")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return fmt.Errorf("create artifacts directory: %w", err)
	}

	ec.SetJobVariable(domain.VarAgentWorkingDir, artifactsDir)
	return nil
}

// sanitizeDirName приводит имя job к безопасному имени директории.
func sanitizeDirName(name string) string {
	if name == "" {
		return "job"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
