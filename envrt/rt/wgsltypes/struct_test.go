package wgsltypes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
)

type testStruct struct {
	Transform mgl32.Mat4 `wgsl:"transform"`
	Color     mgl32.Vec4 `wgsl:"color"`
	Size      mgl32.Vec2 `wgsl:"size"`
	Scale     float32
	Count     int32
	Extent    [2]uint32 `wgsl:"extent"`
	Index     uint32    `wgsl:"index"`
	Flags     uint32    `wgsl:"flags"`
}

func TestNewStruct(t *testing.T) {
	got, err := NewStruct[testStruct]("TestStruct")
	if err != nil {
		t.Fatalf("NewStruct() = %v, want nil error", err)
	}
	want := Struct{
		Name:     "TestStruct",
		Size:     112,
		WGSLSize: 112,
		Fields:   []string{"transform", "color", "size", "Scale", "Count", "extent", "index", "flags"},
		FieldMap: map[string]Field{
			"transform": {Name: "transform", GoName: "Transform", Offset: 0, WGSLType: Type{Name: "mat4x4<f32>", AlignOf: 16, SizeOf: 64}},
			"color":     {Name: "color", GoName: "Color", Offset: 64, WGSLType: Type{Name: "vec4<f32>", AlignOf: 16, SizeOf: 16}},
			"size":      {Name: "size", GoName: "Size", Offset: 80, WGSLType: Type{Name: "vec2<f32>", AlignOf: 8, SizeOf: 8}},
			"Scale":     {Name: "Scale", GoName: "Scale", Offset: 88, WGSLType: Type{Name: "f32", AlignOf: 4, SizeOf: 4}},
			"Count":     {Name: "Count", GoName: "Count", Offset: 92, WGSLType: Type{Name: "i32", AlignOf: 4, SizeOf: 4}},
			"extent":    {Name: "extent", GoName: "Extent", Offset: 96, WGSLType: Type{Name: "vec2<u32>", AlignOf: 8, SizeOf: 8}},
			"index":     {Name: "index", GoName: "Index", Offset: 104, WGSLType: Type{Name: "u32", AlignOf: 4, SizeOf: 4}},
			"flags":     {Name: "flags", GoName: "Flags", Offset: 108, WGSLType: Type{Name: "u32", AlignOf: 4, SizeOf: 4}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestToWGSL(t *testing.T) {
	s, err := NewStruct[testStruct]("TestStruct")
	if err != nil {
		t.Fatalf("NewStruct() failed unexpectedly: %v", err)
	}

	got := s.ToWGSL()
	want := `struct TestStruct {
  transform : mat4x4<f32>,
  color : vec4<f32>,
  size : vec2<f32>,
  Scale : f32,
  Count : i32,
  extent : vec2<u32>,
  index : u32,
  flags : u32,
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
}

type misalignedStruct struct {
	Scale float32
	Color mgl32.Vec4
}

type unpaddedStruct struct {
	Color mgl32.Vec4
	Scale float32
}

type unsupportedStruct struct {
	Name string
}

func TestNewStruct_Errors(t *testing.T) {
	if _, err := NewStruct[misalignedStruct]("m"); err == nil {
		t.Error("NewStruct(misaligned) = nil error, want layout error")
	}
	if _, err := NewStruct[unpaddedStruct]("u"); err == nil {
		t.Error("NewStruct(unpadded) = nil error, want size error")
	}
	if _, err := NewStruct[unsupportedStruct]("s"); err == nil {
		t.Error("NewStruct(string field) = nil error, want type error")
	}
	if _, err := NewStruct[int]("i"); err == nil {
		t.Error("NewStruct(int) = nil error, want error")
	}
}

func TestMustOffsetOf(t *testing.T) {
	s := MustNewStruct[testStruct]("TestStruct")
	if got := s.MustOffsetOf("extent"); got != 96 {
		t.Errorf("MustOffsetOf(extent) = %d, want 96", got)
	}
}
