/*
Package lex implements a Lex-style template engine for `{{ ... }}` markup.

A template is plain text containing variable tags (`{{ user.name }}`), loop
blocks (`{{ items }}...{{ /items }}`), conditional chains
(`{{ if user.group == 'admin' }}...{{ elseif ... }}...{{ else }}...{{ endif }}`),
plugin callback tags (`{{ content:snippet name="intro" }}`), comments
(`{{# ... #}}`) and noparse regions (`{{ noparse }}...{{ /noparse }}`).

Rendering is a fixed sequence of text passes. Regions that a later pass must
not see yet (noparse text, loop bodies, parameterised callback blocks) are
moved into a Store behind opaque placeholder tokens and restored once the pass
that owns them runs. Loop bodies are rendered once per item against the item
itself, and callback output is rendered again so plugins can emit template
syntax.

Callbacks are looked up through a Resolver, usually a Registry that is filled
during start-up and frozen before the first render. Every callback receives
its arguments in the order (params, context, content, data).

A Parser carries session state (the Global Data baseline and, in cumulative
noparse mode, pending noparse regions) and must not be shared between
goroutines rendering different documents.
*/
package lex
