// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ContextKey string

const (
	ContextKeyFields ContextKey = "PROTECTBACKUP_FIELDS"

	// FieldComponent names the component emitting the log record (spec §7).
	FieldComponent = "component"
	// FieldEventID names the event the record concerns, when applicable.
	FieldEventID = "event_id"
	// FieldTarget names the backup/archive target the record concerns.
	FieldTarget = "target"
	// FieldKind carries the error Kind taxonomy from spec §7.
	FieldKind = "kind"
)

// WithFields attaches string key/value pairs to ctx for every subsequent
// *Contextf call; a key already on ctx takes the new value. The parent
// ctx's fields are copied, never modified.
func WithFields(ctx context.Context, fields ...string) context.Context {
	tagCapacity := len(fields) / 2
	tags := make(map[string]string, tagCapacity)
	for i := 0; i < tagCapacity; i++ {
		tags[fields[2*i]] = fields[2*i+1]
	}

	zapFields := append([]zap.Field(nil), contextFields(ctx)...)
	for i := range zapFields {
		v, ok := tags[zapFields[i].Key]
		if !ok {
			continue
		}
		zapFields[i].String = v
		zapFields[i].Type = zapcore.StringType
		delete(tags, zapFields[i].Key)
	}
	for k, v := range tags {
		zapFields = append(zapFields, zapcore.Field{
			Key:    k,
			Type:   zapcore.StringType,
			String: v,
		})
	}
	return context.WithValue(ctx, ContextKeyFields, zapFields)
}

// WithComponent is a convenience wrapper that attaches the component field.
func WithComponent(ctx context.Context, component string) context.Context {
	return WithFields(ctx, FieldComponent, component)
}

func contextFields(ctx context.Context) []zap.Field {
	if val := ctx.Value(ContextKeyFields); val != nil {
		if fields, ok := val.([]zap.Field); ok {
			return fields
		}
	}
	return nil
}
