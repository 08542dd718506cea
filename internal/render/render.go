// Package render turns built contexts into canonical Markdown pages. Output is
// a pure function of the context: same context, same bytes. Templates only
// iterate and print; every threshold, count, and label is precomputed by the
// build package.
package render

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/veslund/canon/internal/build"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/parse"
	"github.com/veslund/canon/internal/store"
)

var pages = template.Must(template.New("pages").Parse(pageTemplates))

// Character renders the full page for a character context.
func Character(ctx *build.CharacterContext) ([]byte, error) {
	return execute("character", ctx)
}

// Scene renders the full page for a scene context.
func Scene(ctx *build.SceneContext) ([]byte, error) {
	return execute("scene", ctx)
}

// Location renders the full page for a location context.
func Location(ctx *build.LocationContext) ([]byte, error) {
	return execute("location", ctx)
}

// Index renders the generated index page.
func Index(ctx *build.IndexContext) ([]byte, error) {
	return execute("index", ctx)
}

// EntityPage builds and renders the page for one entity, dispatching on its
// category.
func EntityPage(st store.Datastore, ent *models.Entity) ([]byte, error) {
	switch ent.Category {
	case models.CategoryCharacter:
		ctx, err := build.BuildCharacter(st, ent.ID)
		if err != nil {
			return nil, err
		}
		return Character(ctx)
	case models.CategoryLocation:
		ctx, err := build.BuildLocation(st, ent.ID)
		if err != nil {
			return nil, err
		}
		return Location(ctx)
	case models.CategoryScene:
		ctx, err := build.BuildScene(st, ent.ID)
		if err != nil {
			return nil, err
		}
		return Scene(ctx)
	default:
		return nil, fmt.Errorf("render: unknown category %q", ent.Category)
	}
}

// IndexPage builds and renders the index page from the current datastore state.
func IndexPage(st store.Datastore) ([]byte, error) {
	ctx, err := build.BuildIndex(st)
	if err != nil {
		return nil, err
	}
	return Index(ctx)
}

func execute(name string, ctx any) ([]byte, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, ctx); err != nil {
		return nil, fmt.Errorf("render: %s: %w", name, err)
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// The generated half of every page sits below parse.GeneratedMarker and is
// never read back by ingestion.
const pageTemplates = `
{{- define "character" -}}
---
category: character
slug: {{.Slug}}
title: {{.Title}}
---

# {{.Title}}

## Overview
{{.Overview}}
{{- if .HasRelationships}}

## Relationships
{{- range .Relationships}}
- [[{{.Display}}]]{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- end}}
{{- if .HasBasedOn}}

## Based On
{{- range .BasedOn}}
**[[{{.Display}}]]** · {{.Qualifier}}{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- end}}
{{- if .HasVoice}}

## Voice
{{- range .Voice}}
{{- range .BodyLines}}
> {{.}}
{{- end}}
— [[{{.Attribution}}]] · {{.Mode}}{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- end}}

` + parse.GeneratedMarker + `

## Appearances
{{.AppearanceLine}}
{{- if .HasCollaborators}}

## Frequent Collaborators
{{- range .Collaborators}}
- [[{{.Display}}]] — {{.CountLabel}}
{{- end}}
{{- end}}
{{- end}}

{{- define "scene" -}}
---
category: scene
slug: {{.Slug}}
title: {{.Title}}
{{- if .HasAct}}
act: {{.Act}}
{{- end}}
---

# {{.Title}}

## Summary
{{.Summary}}

## Participants
{{- range .Participants}}
- [[{{.Display}}]]{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- if .HasSetting}}

## Setting
{{- range .Setting}}
- [[{{.Display}}]]{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- end}}
{{- if .HasSources}}

## Sources
{{- range .Sources}}
**{{.Kind}}:** [[{{.Display}}]]{{with .Note}} — {{.}}{{end}}
{{- end}}
{{- end}}

` + parse.GeneratedMarker + `
{{- if .HasNeighbors}}

## Connected Scenes
{{- range .Neighbors}}
- [[{{.Display}}]] — {{.Note}}
{{- end}}
{{- end}}
{{- end}}

{{- define "location" -}}
---
category: location
slug: {{.Slug}}
title: {{.Title}}
---

# {{.Title}}

## Overview
{{.Overview}}

` + parse.GeneratedMarker + `
{{- if .HasScenes}}

## Scenes Set Here
{{- if .SceneLayout.IsInline}}
{{.SceneInline}}
{{- else if .SceneLayout.IsList}}
{{- range .Scenes}}
- [[{{.Display}}]]
{{- end}}
{{- else}}
{{.SceneOverflow}}
{{- end}}
{{- end}}
{{- if .HasVisitors}}

## Seen Here
{{- range .Visitors}}
- [[{{.Display}}]]
{{- end}}
{{- end}}
{{- end}}

{{- define "index" -}}
# Index

` + parse.GeneratedMarker + `
{{- range .Groups}}

## {{.Heading}}
{{- range .Entries}}
- [[{{.Display}}]]
{{- end}}
{{- end}}
{{- end}}
`
