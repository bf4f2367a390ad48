// Package wgsltypes derives WGSL struct declarations from Go structs so that a
// uniform packed on the host and the struct the shader reads share one layout.
package wgsltypes

import (
	"fmt"
	"reflect"
	"strings"
)

// TypeName is the name of a WGSL type.
type TypeName string

// goToTypeMap maps Go types to WGSL types.
var goToTypeMap = map[string]TypeName{
	"float32": "f32",
	"int32":   "i32",
	"uint32":  "u32",

	"[2]float32": "vec2<f32>",
	"[2]uint32":  "vec2<u32>",
	"[4]float32": "vec4<f32>",
	"[4]uint32":  "vec4<u32>",

	"github.com/go-gl/mathgl/mgl32.Vec2": "vec2<f32>",
	"github.com/go-gl/mathgl/mgl32.Vec3": "vec3<f32>",
	"github.com/go-gl/mathgl/mgl32.Vec4": "vec4<f32>",
	"github.com/go-gl/mathgl/mgl32.Mat4": "mat4x4<f32>",
}

var typeMap = map[TypeName]Type{
	"f32":         {Name: "f32", AlignOf: 4, SizeOf: 4},
	"i32":         {Name: "i32", AlignOf: 4, SizeOf: 4},
	"u32":         {Name: "u32", AlignOf: 4, SizeOf: 4},
	"vec2<f32>":   {Name: "vec2<f32>", AlignOf: 8, SizeOf: 8},
	"vec2<u32>":   {Name: "vec2<u32>", AlignOf: 8, SizeOf: 8},
	"vec3<f32>":   {Name: "vec3<f32>", AlignOf: 16, SizeOf: 12},
	"vec4<f32>":   {Name: "vec4<f32>", AlignOf: 16, SizeOf: 16},
	"vec4<u32>":   {Name: "vec4<u32>", AlignOf: 16, SizeOf: 16},
	"mat4x4<f32>": {Name: "mat4x4<f32>", AlignOf: 16, SizeOf: 64},
}

type Type struct {
	// Name of the WGSL type.
	Name TypeName
	// Alignment of the WGSL type (see https://www.w3.org/TR/WGSL/#alignof).
	AlignOf int
	// Size of the WGSL type (see https://www.w3.org/TR/WGSL/#sizeof).
	SizeOf int
}

// A Struct describes a Go struct and its WGSL counterpart.
type Struct struct {
	// Name is the WGSL struct name.
	Name string
	// Size of the Go structure, in bytes.
	Size int
	// WGSLSize is the size of the WGSL structure, in bytes.
	WGSLSize int

	// Fields is a slice of the WGSL member names, in declaration order.
	Fields []string
	// FieldMap maps member names to Fields.
	FieldMap map[string]Field
}

// A Field describes one member.
type Field struct {
	// Name is the WGSL member name: the field's wgsl tag, or the Go name.
	Name string
	// GoName is the name of the field in the Go struct.
	GoName string

	// Offset is the offset (in bytes) of the field in the Go struct.
	Offset uintptr

	// WGSLType is the corresponding WGSL type to use.
	WGSLType Type
}

func MustNewStruct[T any](name string) Struct {
	s, err := NewStruct[T](name)
	if err != nil {
		panic(fmt.Sprintf("exporting %q: %v", name, err))
	}
	return s
}

// NewStruct describes T. It fails when a field has no WGSL equivalent or when
// the Go layout differs from the WGSL layout, since the host writes the Go
// bytes straight into the buffer the shader reads.
func NewStruct[T any](name string) (Struct, error) {
	var t T
	structType := reflect.TypeOf(t)
	if structType == nil || structType.Kind() != reflect.Struct {
		return Struct{}, fmt.Errorf("provided type is not a struct")
	}

	s := Struct{
		Name:     name,
		Size:     int(structType.Size()),
		FieldMap: make(map[string]Field),
	}

	offset, structAlign := 0, 0
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldType := goTypeName(field.Type)
		wgslTypeName, ok := goToTypeMap[fieldType]
		if !ok {
			return Struct{}, fmt.Errorf("unhandled Go type: %q", fieldType)
		}
		wgslType, ok := typeMap[wgslTypeName]
		if !ok {
			return Struct{}, fmt.Errorf("unhandled WGSL type: %q", wgslTypeName)
		}

		offset = roundUp(offset, wgslType.AlignOf)
		if int(field.Offset) != offset {
			return Struct{}, fmt.Errorf("field %s is at Go offset %d, WGSL offset %d", field.Name, field.Offset, offset)
		}
		offset += wgslType.SizeOf
		structAlign = max(structAlign, wgslType.AlignOf)

		memberName := field.Name
		if tag := field.Tag.Get("wgsl"); tag != "" {
			memberName = tag
		}
		if _, dup := s.FieldMap[memberName]; dup {
			return Struct{}, fmt.Errorf("duplicate WGSL member %q", memberName)
		}
		s.Fields = append(s.Fields, memberName)
		s.FieldMap[memberName] = Field{
			Name:     memberName,
			GoName:   field.Name,
			Offset:   field.Offset,
			WGSLType: wgslType,
		}
	}

	s.WGSLSize = roundUp(offset, max(structAlign, 1))
	if s.WGSLSize != s.Size {
		return Struct{}, fmt.Errorf("Go size %d differs from WGSL size %d", s.Size, s.WGSLSize)
	}
	return s, nil
}

func goTypeName(t reflect.Type) string {
	if t.Name() == "" && t.Kind() == reflect.Array {
		return fmt.Sprintf("[%d]%s", t.Len(), goTypeName(t.Elem()))
	}
	if path := t.PkgPath(); path != "" {
		return path + "." + t.Name()
	}
	return t.Name()
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}

func (s Struct) String() string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("struct %q, size %d\n", s.Name, s.Size))
	for idx, fName := range s.Fields {
		f := s.FieldMap[fName]
		output.WriteString(fmt.Sprintf("  %d: %s at offset %d\n", idx, f.Name, f.Offset))
	}
	return output.String()
}

// ToWGSL returns a string representing the Go struct as a WGSL struct definition.
func (s Struct) ToWGSL() string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("struct %s {\n", s.Name))
	for _, fieldName := range s.Fields {
		f := s.FieldMap[fieldName]
		output.WriteString(fmt.Sprintf("  %s : %s,\n", fieldName, f.WGSLType.Name))
	}
	output.WriteString("}\n")
	return output.String()
}

// MustOffsetOf returns the offset of the specified member.
// Panics if the member is not found.
func (s *Struct) MustOffsetOf(fieldName string) int {
	field, ok := s.FieldMap[fieldName]
	if !ok {
		panic("unknown field: " + fieldName)
	}
	return int(field.Offset)
}
