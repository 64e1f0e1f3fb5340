package clog

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// chatKeys lead every record that carries them, so log lines for one chat
// message read the same whatever order the attributes were added in.
var chatKeys = []string{RoomAttributeKey, SenderAttributeKey, CommandAttributeKey}

// AttributesHandler appends the attributes stored in the record's context.
// A key the record already has is not repeated.
type AttributesHandler struct {
	handler slog.Handler
}

func NewAttributesHandler(handler slog.Handler) *AttributesHandler {
	return &AttributesHandler{handler: handler}
}

func (h *AttributesHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := GetAttributes(ctx)
	if len(attrs) == 0 {
		return h.handler.Handle(ctx, record)
	}
	record.Attrs(func(a slog.Attr) bool {
		delete(attrs, a.Key)
		return true
	})
	record.AddAttrs(orderedAttrs(attrs)...)
	return h.handler.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AttributesHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return &AttributesHandler{handler: h.handler.WithGroup(name)}
}

func orderedAttrs(m map[string]any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(m))
	for _, k := range chatKeys {
		if v, ok := m[k]; ok {
			attrs = append(attrs, slog.Any(k, v))
			delete(m, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		attrs = append(attrs, slog.Any(k, m[k]))
	}
	return attrs
}
