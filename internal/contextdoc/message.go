//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

package contextdoc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoDocuments is returned when a message is built from no documents.
var ErrNoDocuments = errors.New("contextdoc: no documents")

// Message is the immutable cacheable context for one demonstration run.
//
// The rendered text embeds a uniqueness token so that two runs never
// produce byte-identical content, even from identical documents. The
// remote cache is keyed by exact content equality: the probe call and
// the final call must carry this text verbatim, and only the trailing
// question is treated as mutable after the message is built.
type Message struct {
	token     string
	createdAt time.Time
	text      string
}

// NewMessage renders the named documents into a fresh context message.
// Document order in the rendered text is deterministic (sorted by name).
func NewMessage(docs map[string]string) (*Message, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	token := uuid.NewString()
	createdAt := time.Now().UTC()

	var sb strings.Builder
	fmt.Fprintf(
		&sb,
		"<run token=%q generated=%q>\n",
		token,
		createdAt.Format(time.RFC3339Nano),
	)
	for _, name := range names {
		fmt.Fprintf(&sb, "\n<document name=%q>\n", name)
		sb.WriteString(docs[name])
		if !strings.HasSuffix(docs[name], "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString("</document>\n")
	}
	sb.WriteString("</run>\n")

	return &Message{
		token:     token,
		createdAt: createdAt,
		text:      sb.String(),
	}, nil
}

// Token returns the uniqueness token embedded in the message.
func (m *Message) Token() string { return m.token }

// CreatedAt returns the message build time.
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// Text returns the exact cacheable payload. Callers must send it
// verbatim in every call that should share the cache entry.
func (m *Message) Text() string { return m.text }

// Size returns the payload length in bytes.
func (m *Message) Size() int { return len(m.text) }
