package scene

import (
	"encoding/binary"
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroki-sone/prism/engine/renderer/gpu"
	"github.com/hiroki-sone/prism/engine/renderer/soft"
)

func triangleDesc(name string) MeshDesc {
	return MeshDesc{
		Name: name,
		Positions: []mgl32.Vec3{
			{0, 1, 0},
			{-1, -1, 0},
			{1, -1, 0},
		},
		Normals: []mgl32.Vec3{
			{0, 0, 1},
			{0, 0, 1},
			{0, 0, 1},
		},
		Indices: []uint32{0, 1, 2},
	}
}

type testRig struct {
	dev       *soft.Device
	gfxQueue  *gpu.CommandQueue
	copyQueue *gpu.CommandQueue
	views     *gpu.CbvSrvUavHeap
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	dev := soft.New()
	gfx, err := gpu.NewCommandQueue(dev, "gfx_queue")
	require.NoError(t, err)
	t.Cleanup(gfx.Shutdown)

	cp, err := gpu.NewCommandQueue(dev, "copy_queue")
	require.NoError(t, err)
	t.Cleanup(cp.Shutdown)

	views, err := gpu.NewCbvSrvUavHeap(dev, 128, "resource_views")
	require.NoError(t, err)
	t.Cleanup(views.Release)

	return &testRig{dev: dev, gfxQueue: gfx, copyQueue: cp, views: views}
}

func TestNewMeshUploadsGeometry(t *testing.T) {
	rig := newTestRig(t)

	mesh, err := NewMesh(rig.dev, rig.copyQueue, rig.views, triangleDesc("tri"))
	require.NoError(t, err)
	defer mesh.Release()

	assert.Equal(t, uint32(3), mesh.IndexCount())
	assert.Equal(t, uint32(3), mesh.VertexCount())
	assert.NotZero(t, mesh.IndexBufferAddress())
	assert.NotZero(t, mesh.PositionBufferAddress())
	assert.NotEqual(t, mesh.IndexSrv().Handle(), mesh.NormalSrv().Handle())
	assert.Equal(t, 0, rig.copyQueue.LeasedAllocatorCount())
}

func TestNewMeshRejectsBadGeometry(t *testing.T) {
	rig := newTestRig(t)

	empty := MeshDesc{Name: "empty"}
	_, err := NewMesh(rig.dev, rig.copyQueue, rig.views, empty)
	assert.Error(t, err)

	lopsided := triangleDesc("lopsided")
	lopsided.Normals = lopsided.Normals[:2]
	_, err = NewMesh(rig.dev, rig.copyQueue, rig.views, lopsided)
	assert.Error(t, err)
}

func TestStationaryPolicyIgnoresTime(t *testing.T) {
	transform := mgl32.Translate3D(1, 2, 3)
	p := Stationary{Transform: transform}

	assert.Equal(t, transform, p.TransformAt(0))
	assert.Equal(t, transform, p.TransformAt(123.4))
}

func TestConstantRotationStartsAtBase(t *testing.T) {
	base := mgl32.Translate3D(0, 5, 0)
	p := ConstantRotation{Base: base, Axis: mgl32.Vec3{0, 1, 0}, DegreesPerSecond: 90}

	at0 := p.TransformAt(0)
	assert.True(t, base.ApproxEqual(at0))

	// A quarter turn moves +X to -Z under a Y-axis rotation.
	at1 := p.TransformAt(1)
	rotated := at1.Mul4x1(mgl32.Vec4{1, 0, 0, 0})
	assert.InDelta(t, 0, rotated.X(), 1e-5)
	assert.InDelta(t, -1, rotated.Z(), 1e-5)
}

func TestCustomPolicy(t *testing.T) {
	p := Custom(func(seconds float64) mgl32.Mat4 {
		return mgl32.Translate3D(float32(seconds), 0, 0)
	})
	assert.True(t, mgl32.Translate3D(2, 0, 0).ApproxEqual(p.TransformAt(2)))
}

func buildTestScene(t *testing.T, rig *testRig, policy UpdatePolicy) *Scene {
	t.Helper()

	s, err := NewScene(rig.dev, rig.views, "test_scene")
	require.NoError(t, err)
	t.Cleanup(s.Release)

	mesh, err := NewMesh(rig.dev, rig.copyQueue, rig.views, triangleDesc("tri"))
	require.NoError(t, err)
	t.Cleanup(mesh.Release)

	require.NoError(t, s.AddObject(mesh, policy))
	require.NoError(t, s.Build(rig.gfxQueue))
	return s
}

func TestSceneBuildExposesViews(t *testing.T) {
	rig := newTestRig(t)
	s := buildTestScene(t, rig, Stationary{Transform: mgl32.Ident4()})

	srv, ok := s.Srv()
	require.True(t, ok)
	assert.NotEqual(t, gpu.InvalidViewHandle, srv.Handle())

	data := s.MeshData()
	require.Len(t, data, 1)
	assert.NotEqual(t, gpu.InvalidViewHandle, data[0].IndexBufferHandle)
	assert.Equal(t, 1, s.ObjectCount())
}

func TestAddObjectAfterBuildFails(t *testing.T) {
	rig := newTestRig(t)
	s := buildTestScene(t, rig, Stationary{Transform: mgl32.Ident4()})

	mesh, err := NewMesh(rig.dev, rig.copyQueue, rig.views, triangleDesc("late"))
	require.NoError(t, err)
	defer mesh.Release()

	assert.Error(t, s.AddObject(mesh, Stationary{Transform: mgl32.Ident4()}))
}

func TestAdvanceStreamsTransforms(t *testing.T) {
	rig := newTestRig(t)
	s := buildTestScene(t, rig, Custom(func(seconds float64) mgl32.Mat4 {
		return mgl32.Translate3D(float32(seconds), 0, 0)
	}))

	require.NoError(t, s.Advance(4))

	raw := s.nodes[0].transformBuffer.(interface{ Contents() []byte }).Contents()
	// Row-major 3x4: the translation sits in elements 3, 7, 11.
	tx := stdmath.Float32frombits(binary.LittleEndian.Uint32(raw[3*4:]))
	ty := stdmath.Float32frombits(binary.LittleEndian.Uint32(raw[7*4:]))
	assert.Equal(t, float32(4), tx)
	assert.Equal(t, float32(0), ty)
}

func TestRecordUpdateRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	s := buildTestScene(t, rig, ConstantRotation{
		Base: mgl32.Ident4(), Axis: mgl32.Vec3{0, 1, 0}, DegreesPerSecond: 45,
	})

	srvBefore, _ := s.Srv()

	for frame := 0; frame < 3; frame++ {
		require.NoError(t, s.Advance(float64(frame)/60.0))

		ctx, err := rig.gfxQueue.RequestContext()
		require.NoError(t, err)
		require.NoError(t, s.RecordUpdate(ctx.CommandList()))
		value, err := rig.gfxQueue.Execute(ctx)
		require.NoError(t, err)
		require.NoError(t, rig.gfxQueue.Wait(value))
	}

	srvAfter, ok := s.Srv()
	require.True(t, ok)
	assert.Equal(t, srvBefore.Handle(), srvAfter.Handle())
}

func TestRecordUpdateBeforeBuildFails(t *testing.T) {
	rig := newTestRig(t)

	s, err := NewScene(rig.dev, rig.views, "unbuilt")
	require.NoError(t, err)
	defer s.Release()

	ctx, err := rig.gfxQueue.RequestContext()
	require.NoError(t, err)
	assert.Error(t, s.RecordUpdate(ctx.CommandList()))
	_, err = rig.gfxQueue.Execute(ctx)
	require.NoError(t, err)
}

func TestSetCamera(t *testing.T) {
	rig := newTestRig(t)
	s := buildTestScene(t, rig, Stationary{Transform: mgl32.Ident4()})

	require.NoError(t, s.SetCamera(Camera{
		View:       mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100),
	}))
	assert.Equal(t, uint32(0), s.CameraCbv().Handle(), "camera view is the first slot")
}
