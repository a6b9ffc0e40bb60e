package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestChatSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(ChatSession{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "Backend", "size:255")
	assertGormTag(t, typ, "Document", "size:255")
	assertGormTag(t, typ, "Resets", "default:0")
	assertGormTag(t, typ, "UpdatedAt", "index")
	assertGormTag(t, typ, "Turns", "foreignKey:SessionID")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "Resets", "int")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
	assertFieldType(t, typ, "Turns", "[]models.ChatTurn")
}

func TestChatTurn_Fields(t *testing.T) {
	typ := reflect.TypeOf(ChatTurn{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "SessionID", "size:36")
	assertGormTag(t, typ, "SessionID", "uniqueIndex:idx_session_sequence")
	assertGormTag(t, typ, "Sequence", "uniqueIndex:idx_session_sequence")
	assertGormTag(t, typ, "Sequence", "not null")
	assertGormTag(t, typ, "Role", "size:16")
	assertGormTag(t, typ, "Content", "type:text")
	assertGormTag(t, typ, "RolledBack", "default:false")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "Sequence", "int")
	assertFieldType(t, typ, "Epoch", "int")
	assertFieldType(t, typ, "RolledBack", "bool")
}
