/*
Package templating loads a theme from the filesystem and renders its layouts
with the lex template engine.

A theme source directory holds layouts, partials, per-layout data files, an
optional site configuration (template.conf as JSON, or template.yaml) and
optional Lua callback scripts. The TemplateManager builds a callback registry
from the built-in plugins (content, formatting, dates, navigation, page headers
and footers, partials) and the scripts, and renders layouts against their data
with the site configuration and the stored data documents as Global Data.

All methods of TemplateManager are safe for concurrent use. Refresh reloads the
theme without restarting the application.
*/
package templating
