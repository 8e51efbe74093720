// Package assembler merges a user prompt with the text of uploaded files
// into one bounded prompt for the model server.
package assembler

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"llmgate/pkg/types"
)

// Layout of the merged prompt. Files come first, each fenced and labelled
// with its name, followed by the user's prompt.
const (
	contextIntro    = "I have the following files for context:\n\n"
	sectionOpen     = "File: %s\n```\n"
	sectionClose    = "\n```\n\n"
	sectionCutClose = "\n```\n[truncated]\n\n"
	promptLead      = "Based on these files, "
)

// Prompt is the assembled payload handed to the stream proxy.
type Prompt struct {
	Text      string
	Truncated bool
	// Included counts attachments that contributed any content.
	Included int
	// Errors lists attachments rejected as non-text, in request order.
	Errors []types.AttachmentError
}

// Assembler applies a size policy that may change at runtime.
type Assembler struct {
	maxBytes atomic.Int64
}

// New returns an Assembler limiting prompts to maxBytes (<= 0 disables the limit).
func New(maxBytes int) *Assembler {
	a := &Assembler{}
	a.SetMaxBytes(maxBytes)
	return a
}

func (a *Assembler) SetMaxBytes(n int) { a.maxBytes.Store(int64(n)) }
func (a *Assembler) MaxBytes() int     { return int(a.maxBytes.Load()) }

// Assemble builds a prompt with the current limit.
func (a *Assembler) Assemble(prompt string, attachments []types.Attachment) Prompt {
	return Assemble(prompt, attachments, a.MaxBytes())
}

// Assemble concatenates prompt with the decoded text of each attachment in
// the order given. When the result would exceed maxBytes, attachment text is
// cut from the end; the prompt itself is never shortened. If the prompt alone
// does not fit, it is returned without any attachment content.
func Assemble(prompt string, attachments []types.Attachment, maxBytes int) Prompt {
	var out Prompt
	texts := make([]decoded, 0, len(attachments))
	for _, att := range attachments {
		text, err := decodeText(att.Filename, att.Content, att.Partial)
		if err != nil {
			ua := err.(*UnsupportedAttachmentError)
			out.Errors = append(out.Errors, types.AttachmentError{
				Filename: att.Filename,
				Code:     ua.Code(),
				Error:    ua.Reason,
			})
			continue
		}
		texts = append(texts, decoded{name: att.Filename, text: text, partial: att.Partial})
	}
	if len(texts) == 0 {
		out.Text = prompt
		return out
	}

	unlimited := maxBytes <= 0
	budget := maxBytes - len(contextIntro) - len(promptLead) - len(prompt)

	var b strings.Builder
	for _, d := range texts {
		open := sectionFor(d.name)
		closing := sectionClose
		if d.partial {
			closing = sectionCutClose
		}
		whole := len(open) + len(d.text) + len(closing)
		if unlimited || whole <= budget {
			b.WriteString(open)
			b.Write(d.text)
			b.WriteString(closing)
			budget -= whole
			out.Included++
			if d.partial {
				out.Truncated = true
			}
			continue
		}
		// Partial section: what remains of the budget after the framing.
		room := budget - len(open) - len(sectionCutClose)
		if room > 0 {
			cut := runeSafePrefix(d.text, room)
			if cut > 0 {
				b.WriteString(open)
				b.Write(d.text[:cut])
				b.WriteString(sectionCutClose)
				out.Included++
			}
		}
		out.Truncated = true
		break
	}

	if out.Included == 0 {
		out.Text = prompt
		return out
	}
	out.Text = contextIntro + b.String() + promptLead + prompt
	return out
}

// Inspect validates one uploaded file without assembling anything.
func Inspect(att types.Attachment) types.AttachmentReport {
	rep := types.AttachmentReport{Filename: att.Filename, Bytes: len(att.Content)}
	text, err := decodeText(att.Filename, att.Content, att.Partial)
	if err != nil {
		ua := err.(*UnsupportedAttachmentError)
		rep.Code = ua.Code()
		rep.Error = ua.Reason
		return rep
	}
	rep.OK = true
	rep.TextBytes = len(text)
	return rep
}

type decoded struct {
	name    string
	text    []byte
	partial bool
}

func sectionFor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}
	return fmt.Sprintf(sectionOpen, strings.ReplaceAll(name, "\n", " "))
}

// runeSafePrefix returns the largest n <= limit such that b[:n] ends on a
// rune boundary.
func runeSafePrefix(b []byte, limit int) int {
	if limit >= len(b) {
		return len(b)
	}
	n := limit
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return n
}
