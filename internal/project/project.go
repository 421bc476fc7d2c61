// Package project provides batch job file handling and persistence.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File represents a texture projection job file (.ftproj): one mesh
// template plus a set of photos to project against it. All paths are
// stored relative to the job file where possible.
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// TemplatePath points at the mesh template manifest.
	TemplatePath string `json:"template"`

	// Photos lists the inputs to project.
	Photos []PhotoEntry `json:"photos"`

	// ConfigPath optionally overrides the pipeline configuration.
	ConfigPath string `json:"config,omitempty"`

	// OutputDir receives the textures; empty means next to each photo.
	OutputDir string `json:"output_dir,omitempty"`

	// Settings holds per-job output preferences.
	Settings Settings `json:"settings,omitempty"`
}

// PhotoEntry is one photo to project, with an optional explicit landmark
// file. An empty Landmarks falls back to <photo>.landmarks.json.
type PhotoEntry struct {
	Photo     string `json:"photo"`
	Landmarks string `json:"landmarks,omitempty"`
}

// Settings holds user preferences for the job.
type Settings struct {
	WriteDiagnostics bool `json:"write_diagnostics"`
	WriteOverlay     bool `json:"write_overlay"`
}

// New creates a job file with default settings.
func New(name, templatePath string) *File {
	now := time.Now()
	return &File{
		Version:      1,
		Name:         name,
		Created:      now,
		Modified:     now,
		TemplatePath: templatePath,
		Settings: Settings{
			WriteDiagnostics: true,
		},
	}
}

// Load loads a job from a .ftproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var job File
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}
	if job.TemplatePath == "" {
		return nil, fmt.Errorf("job file %s has no template", path)
	}
	return &job, nil
}

// Save saves the job to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// AddPhoto appends a photo entry, storing the path relative to the job
// file when possible.
func (p *File) AddPhoto(projectPath, photoPath, landmarksPath string) {
	p.Photos = append(p.Photos, PhotoEntry{
		Photo:     relativize(projectPath, photoPath),
		Landmarks: relativize(projectPath, landmarksPath),
	})
	p.Modified = time.Now()
}

// ResolveTemplate returns the absolute path to the template manifest.
func (p *File) ResolveTemplate(projectPath string) string {
	return resolve(projectPath, p.TemplatePath)
}

// ResolveConfig returns the absolute path to the config override, or ""
// when the job carries none.
func (p *File) ResolveConfig(projectPath string) string {
	if p.ConfigPath == "" {
		return ""
	}
	return resolve(projectPath, p.ConfigPath)
}

// ResolvePhoto returns the absolute photo and landmark paths for entry i.
// A missing landmark path defaults to <photo>.landmarks.json.
func (p *File) ResolvePhoto(projectPath string, i int) (photoPath, landmarksPath string) {
	e := p.Photos[i]
	photoPath = resolve(projectPath, e.Photo)
	if e.Landmarks == "" {
		return photoPath, photoPath + ".landmarks.json"
	}
	return photoPath, resolve(projectPath, e.Landmarks)
}

// ResolveOutputDir returns the absolute output directory, or "" when
// outputs go next to each photo.
func (p *File) ResolveOutputDir(projectPath string) string {
	if p.OutputDir == "" {
		return ""
	}
	return resolve(projectPath, p.OutputDir)
}

func relativize(projectPath, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Dir(projectPath), path)
	if err != nil {
		return path
	}
	return rel
}

func resolve(projectPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(projectPath), path)
}
