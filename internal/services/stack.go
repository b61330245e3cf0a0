package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"drydock/internal/storage"
)

// Stack is the result of manifest-driven technology detection on a project's
// durable-store contents.
type Stack struct {
	Language       string `json:"language"`
	Framework      string `json:"framework,omitempty"`
	PackageManager string `json:"package_manager,omitempty"`
	Manifest       string `json:"manifest,omitempty"`
	DevCommand     string `json:"dev_command,omitempty"`
	BuildCommand   string `json:"build_command,omitempty"`
	DefaultPort    int    `json:"default_port"`

	// Scripts holds the Node manifest's script entries when present, used
	// for dev-command resolution.
	Scripts map[string]string `json:"-"`
}

// devScriptPreference is the fixed order manifest scripts are consulted in
// when no explicit dev command is supplied.
var devScriptPreference = []string{"dev", "start:dev", "start", "serve"}

// stackDetector maps one manifest file to a stack. Detectors run in fixed
// priority order; the first whose manifest exists wins.
type stackDetector struct {
	manifests []string
	build     func(manifest string, content []byte) *Stack
}

var stackDetectors = []stackDetector{
	{
		manifests: []string{"package.json"},
		build:     buildNodeStack,
	},
	{
		manifests: []string{"requirements.txt", "pyproject.toml", "Pipfile"},
		build: func(manifest string, content []byte) *Stack {
			s := &Stack{Language: "python", PackageManager: "pip", Manifest: manifest, DefaultPort: 8000}
			text := string(content)
			switch {
			case strings.Contains(text, "django"):
				s.Framework = "django"
				s.DevCommand = "python manage.py runserver 0.0.0.0:8000"
			case strings.Contains(text, "fastapi"):
				s.Framework = "fastapi"
				s.DevCommand = "uvicorn main:app --host 0.0.0.0 --port 8000"
			case strings.Contains(text, "flask"):
				s.Framework = "flask"
				s.DevCommand = "flask run --host 0.0.0.0 --port 8000"
			}
			if manifest == "Pipfile" {
				s.PackageManager = "pipenv"
			}
			if manifest == "pyproject.toml" && strings.Contains(text, "[tool.poetry]") {
				s.PackageManager = "poetry"
			}
			return s
		},
	},
	{
		manifests: []string{"Cargo.toml"},
		build: func(manifest string, content []byte) *Stack {
			return &Stack{Language: "rust", PackageManager: "cargo", Manifest: manifest,
				DevCommand: "cargo run", BuildCommand: "cargo build", DefaultPort: 8080}
		},
	},
	{
		manifests: []string{"go.mod"},
		build: func(manifest string, content []byte) *Stack {
			return &Stack{Language: "go", PackageManager: "go", Manifest: manifest,
				DevCommand: "go run .", BuildCommand: "go build ./...", DefaultPort: 8080}
		},
	},
	{
		manifests: []string{"pom.xml"},
		build: func(manifest string, content []byte) *Stack {
			return &Stack{Language: "java", Framework: "maven", PackageManager: "maven", Manifest: manifest,
				DevCommand: "mvn spring-boot:run", BuildCommand: "mvn package", DefaultPort: 8080}
		},
	},
	{
		manifests: []string{"build.gradle", "build.gradle.kts"},
		build: func(manifest string, content []byte) *Stack {
			return &Stack{Language: "java", Framework: "gradle", PackageManager: "gradle", Manifest: manifest,
				DevCommand: "gradle bootRun", BuildCommand: "gradle build", DefaultPort: 8080}
		},
	},
	{
		manifests: []string{"composer.json"},
		build: func(manifest string, content []byte) *Stack {
			return &Stack{Language: "php", PackageManager: "composer", Manifest: manifest,
				DevCommand: "php -S 0.0.0.0:8000", DefaultPort: 8000}
		},
	},
	{
		manifests: []string{"Gemfile"},
		build: func(manifest string, content []byte) *Stack {
			s := &Stack{Language: "ruby", PackageManager: "bundler", Manifest: manifest, DefaultPort: 4567}
			if strings.Contains(string(content), "rails") {
				s.Framework = "rails"
				s.DevCommand = "rails server -b 0.0.0.0"
				s.DefaultPort = 3000
			}
			return s
		},
	},
}

func buildNodeStack(manifest string, content []byte) *Stack {
	s := &Stack{Language: "javascript", PackageManager: "npm", Manifest: manifest, DefaultPort: 3000}

	var pkg struct {
		Scripts         map[string]string `json:"scripts"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return s
	}
	s.Scripts = pkg.Scripts

	deps := map[string]string{}
	for k, v := range pkg.Dependencies {
		deps[k] = v
	}
	for k, v := range pkg.DevDependencies {
		deps[k] = v
	}

	switch {
	case deps["next"] != "":
		s.Framework = "nextjs"
	case deps["@angular/core"] != "":
		s.Framework = "angular"
		s.DefaultPort = 4200
	case deps["vite"] != "":
		s.Framework = "vite"
		s.DefaultPort = 5173
	case deps["react"] != "":
		s.Framework = "react"
	case deps["vue"] != "":
		s.Framework = "vue"
	case deps["express"] != "":
		s.Framework = "express"
	}
	if deps["typescript"] != "" {
		s.Language = "typescript"
	}

	if _, ok := pkg.Scripts["build"]; ok {
		s.BuildCommand = "npm run build"
	}
	return s
}

// DetectStack infers a project's technology stack from its durable-store
// manifest files. Detection order is fixed: Node manifest first, then
// Python, Rust, Go, Java (Maven before Gradle), PHP, Ruby, and finally a
// generic fallback — a project containing both package.json and
// requirements.txt is Node.
func DetectStack(ctx context.Context, store storage.FileStore, projectID string) (*Stack, error) {
	for _, detector := range stackDetectors {
		for _, manifest := range detector.manifests {
			key := storage.ProjectFileKey(projectID, manifest)
			reader, _, err := store.Get(ctx, key)
			if err != nil {
				if storage.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("read manifest %s: %w", manifest, err)
			}

			content, readErr := io.ReadAll(reader)
			reader.Close()
			if readErr != nil {
				return nil, fmt.Errorf("read manifest %s: %w", manifest, readErr)
			}

			stack := detector.build(manifest, content)
			if manifest == "package.json" {
				stack.PackageManager = nodePackageManager(ctx, store, projectID)
			}
			return stack, nil
		}
	}

	return &Stack{Language: "unknown", DefaultPort: 3000}, nil
}

// nodePackageManager infers the package manager from the lockfile present.
func nodePackageManager(ctx context.Context, store storage.FileStore, projectID string) string {
	for lockfile, pm := range map[string]string{
		"yarn.lock":      "yarn",
		"pnpm-lock.yaml": "pnpm",
	} {
		if ok, err := store.Exists(ctx, storage.ProjectFileKey(projectID, lockfile)); err == nil && ok {
			return pm
		}
	}
	return "npm"
}

// ResolveDevCommand picks the dev-server start command: an explicit
// agent-supplied command always wins; otherwise the Node manifest's script
// entries are consulted in fixed preference order (dev, start:dev, start,
// serve); otherwise the stack's own default. Empty means no server should be
// started.
func ResolveDevCommand(stack *Stack, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if stack == nil {
		return ""
	}

	runner := "npm run"
	switch stack.PackageManager {
	case "yarn":
		runner = "yarn"
	case "pnpm":
		runner = "pnpm run"
	}

	for _, name := range devScriptPreference {
		if _, ok := stack.Scripts[name]; ok {
			if name == "start" && stack.PackageManager == "npm" {
				return "npm start"
			}
			return runner + " " + name
		}
	}

	return stack.DevCommand
}

// ResolveBuildCommand picks the build command for the build runner: explicit
// wins, then the manifest build script, then the stack default.
func ResolveBuildCommand(stack *Stack, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if stack == nil {
		return ""
	}
	if _, ok := stack.Scripts["build"]; ok && stack.BuildCommand == "" {
		return "npm run build"
	}
	return stack.BuildCommand
}
