package mcpserver

// PageFormatContract describes the canonical Markdown page format that
// LLM consumers should follow when creating or updating canon pages.
const PageFormatContract = `# Canon Page Format Contract

Every Markdown page stored in Canon MUST follow this structure.

## Structure

` + "```" + `markdown
---
category: character                 # REQUIRED – character | location | scene
slug: anna-merse                    # REQUIRED – must match the file name stem
title: Anna Merse                   # REQUIRED – the display name everywhere
act: 2                              # scenes only, OPTIONAL
---

## Overview

Body prose in standard Markdown.

## Relationships

- [[Marcus Vale]] — childhood rival

<!-- canon:generated -->

Everything below the marker is machine-generated. Never edit it; it is
rebuilt on every sync and hand edits below the marker are discarded.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "`" + `---` + "`" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `category` + "`" + `, ` + "`" + `slug` + "`" + ` and ` + "`" + `title` + "`" + ` are required.** The slug must equal
   the file name without ` + "`" + `.md` + "`" + `, and the file must live in the directory
   for its category: ` + "`" + `characters/` + "`" + `, ` + "`" + `locations/` + "`" + ` or ` + "`" + `scenes/` + "`" + `.
3. **Sections** are ` + "`" + `## ` + "`" + ` headings. Only headings the category allows are
   accepted; anything else is rejected with a diagnostic.
4. **References** use double brackets: ` + "`" + `- [[Other Page]]` + "`" + `, optionally
   followed by ` + "`" + ` — a free-text note` + "`" + ` (spaced em dash separator). The target
   is another page's title or slug.
5. **Structured entries** are either ` + "`" + `**[[Ref]]** · qualifier` + "`" + ` or
   ` + "`" + `**Kind:** [[Ref]]` + "`" + `, each with an optional ` + "`" + ` — note` + "`" + ` suffix. Qualifiers
   and kinds come from closed sets; anything else is rejected.
6. **Quotes** are ` + "`" + `> ` + "`" + ` blocks followed by an attribution line:
   ` + "`" + `— [[Speaker]] · verbatim` + "`" + ` (modes: verbatim, paraphrase, disputed).
7. **Never edit below** ` + "`" + `<!-- canon:generated -->` + "`" + `. That half is owned by
   the sync engine and regenerated from the datastore.
8. **Encoding** is UTF-8 with a trailing newline.

## Category sections

- **character**: ` + "`" + `Overview` + "`" + ` (required prose), ` + "`" + `Relationships` + "`" + ` (references),
  ` + "`" + `Based On` + "`" + ` (structured; qualifiers: primary, composite, inspiration),
  ` + "`" + `Voice` + "`" + ` (quotes).
- **location**: ` + "`" + `Overview` + "`" + ` (required prose).
- **scene**: ` + "`" + `Summary` + "`" + ` (required prose), ` + "`" + `Participants` + "`" + ` (required
  references), ` + "`" + `Setting` + "`" + ` (references), ` + "`" + `Sources` + "`" + ` (structured; kinds:
  Interview, Archive, Research).

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into a prose section.
- Assets are stored in the shared ` + "`" + `attachments/` + "`" + ` directory (flat, no sub-folders).
- Reference in pages using the absolute path: ` + "`" + `![description](/attachments/filename.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.
- Do **not** use relative paths like ` + "`" + `./attachments/...` + "`" + ` — always use ` + "`" + `/attachments/filename` + "`" + `.

## Example

` + "```" + `markdown
---
category: scene
slug: the-harbor-meeting
title: The Harbor Meeting
act: 2
---

## Summary

Anna confronts Marcus at the harbor before dawn.

## Participants

- [[Anna Merse]] — instigates the meeting
- [[Marcus Vale]]

## Setting

- [[Old Harbor]]

## Sources

**Interview:** [[Harbor Logbook]] — pages 12-14
` + "```" + `
`
