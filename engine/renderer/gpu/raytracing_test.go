package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/soft"
)

// stubMesh is a single triangle backed by real upload buffers.
type stubMesh struct {
	indexBuffer    device.Buffer
	positionBuffer device.Buffer
	indexSrv       Srv
	normalSrv      Srv
}

func newStubMesh(t *testing.T, dev *soft.Device, views *CbvSrvUavHeap) *stubMesh {
	t.Helper()

	indices := make([]byte, 3*4)
	for i := uint32(0); i < 3; i++ {
		binary.LittleEndian.PutUint32(indices[i*4:], i)
	}
	ib, err := CreateBufferWithData(dev, device.ResourceFlagNone, device.ResourceStateGenericRead, indices, "stub::indices")
	require.NoError(t, err)
	t.Cleanup(ib.Release)

	positions := make([]byte, 3*12)
	pb, err := CreateBufferWithData(dev, device.ResourceFlagNone, device.ResourceStateGenericRead, positions, "stub::positions")
	require.NoError(t, err)
	t.Cleanup(pb.Release)

	return &stubMesh{
		indexBuffer:    ib,
		positionBuffer: pb,
		indexSrv: views.CreateSrv(ib, device.ShaderResourceViewDesc{
			Format:      device.FormatR32Uint,
			Dimension:   device.SRVDimensionBuffer,
			NumElements: 3,
		}),
		normalSrv: views.CreateSrv(pb, device.ShaderResourceViewDesc{
			Dimension:           device.SRVDimensionBuffer,
			NumElements:         3,
			StructureByteStride: 12,
		}),
	}
}

func (m *stubMesh) IndexFormat() device.Format    { return device.FormatR32Uint }
func (m *stubMesh) PositionFormat() device.Format { return device.FormatR32G32B32Float }
func (m *stubMesh) IndexCount() uint32            { return 3 }
func (m *stubMesh) VertexCount() uint32           { return 3 }
func (m *stubMesh) IndexBufferAddress() uint64    { return m.indexBuffer.GPUVirtualAddress() }
func (m *stubMesh) PositionBufferAddress() uint64 { return m.positionBuffer.GPUVirtualAddress() }
func (m *stubMesh) PositionStride() uint64        { return 12 }
func (m *stubMesh) IndexSrv() Srv                 { return m.indexSrv }
func (m *stubMesh) NormalSrv() Srv                { return m.normalSrv }

func newTestScene(t *testing.T) (*soft.Device, *CommandQueue, *CbvSrvUavHeap, *RaytracingScene) {
	t.Helper()

	dev := soft.New()
	q, err := NewCommandQueue(dev, "gfx_queue")
	require.NoError(t, err)
	t.Cleanup(q.Shutdown)

	views, err := NewCbvSrvUavHeap(dev, 64, "resource_views")
	require.NoError(t, err)
	t.Cleanup(views.Release)

	scene := NewRaytracingScene(device.BuildFlagPreferFastTrace, "test_scene")
	t.Cleanup(scene.Release)

	blas := scene.AddBlas(device.BuildFlagAllowUpdate)
	scene.AddMesh(blas, newStubMesh(t, dev, views), 0)

	require.NoError(t, scene.Build(dev, q, views))
	return dev, q, views, scene
}

func TestSceneBuildProducesSrv(t *testing.T) {
	_, q, _, scene := newTestScene(t)

	srv, ok := scene.Srv()
	require.True(t, ok)
	assert.NotEqual(t, InvalidViewHandle, srv.Handle())

	assert.Equal(t, 1, scene.Tlas().InstanceCount())
	assert.Equal(t, 0, q.LeasedAllocatorCount())

	data := scene.MeshData()
	require.Len(t, data, 1)
	assert.NotEqual(t, InvalidViewHandle, data[0].IndexBufferHandle)
	assert.NotEqual(t, InvalidViewHandle, data[0].NormalBufferHandle)
}

func TestMeshDataDefaultsToInvalidHandles(t *testing.T) {
	scene := NewRaytracingScene(device.BuildFlagNone, "empty_scene")
	scene.AddBlas(device.BuildFlagNone)

	data := scene.MeshData()
	require.Len(t, data, 1)
	assert.Equal(t, InvalidViewHandle, data[0].IndexBufferHandle)
	assert.Equal(t, InvalidViewHandle, data[0].NormalBufferHandle)
}

func TestGeometryImmutableAfterBuild(t *testing.T) {
	dev, _, views, scene := newTestScene(t)

	mesh := newStubMesh(t, dev, views)
	assert.Panics(t, func() {
		scene.AddMesh(0, mesh, 0)
	})
}

func TestUpdateKeepsStableResultAddress(t *testing.T) {
	dev, q, views, scene := newTestScene(t)

	srvBefore, ok := scene.Srv()
	require.True(t, ok)
	addrBefore := scene.Tlas().ResultAddress()
	viewsBefore := views.ViewCount()

	// The instance set never grows after build, so repeated updates
	// must neither move the result buffer nor mint new views.
	for i := 0; i < 3; i++ {
		ctx, err := q.RequestContext()
		require.NoError(t, err)
		require.NoError(t, scene.Update(dev, views, ctx.CommandList()))
		value, err := q.Execute(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Wait(value))
	}

	srvAfter, ok := scene.Srv()
	require.True(t, ok)
	assert.Equal(t, srvBefore.Handle(), srvAfter.Handle())
	assert.Equal(t, addrBefore, scene.Tlas().ResultAddress())
	assert.Equal(t, viewsBefore, views.ViewCount())
}

func TestUpdateRecordsRefitAndRebuild(t *testing.T) {
	dev, q, views, scene := newTestScene(t)

	ctx, err := q.RequestContext()
	require.NoError(t, err)
	list := ctx.CommandList()
	require.NoError(t, scene.Update(dev, views, list))

	builds := list.(interface{ Builds() []device.BuildDesc }).Builds()
	require.Len(t, builds, 2)

	refit := builds[0]
	assert.Equal(t, device.StructureBottomLevel, refit.Inputs.Kind)
	assert.NotZero(t, refit.Inputs.Flags&device.BuildFlagPerformUpdate)
	assert.Equal(t, refit.DestAddress, refit.SourceAddress, "refit is in place")

	rebuild := builds[1]
	assert.Equal(t, device.StructureTopLevel, rebuild.Inputs.Kind)
	assert.Zero(t, rebuild.Inputs.Flags&device.BuildFlagPerformUpdate, "top level always fully rebuilds")
	assert.Zero(t, rebuild.SourceAddress)

	_, err = q.Execute(ctx)
	require.NoError(t, err)
}

func TestUpdateWithoutAllowUpdatePanics(t *testing.T) {
	dev := soft.New()
	q, err := NewCommandQueue(dev, "gfx_queue")
	require.NoError(t, err)
	defer q.Shutdown()

	views, err := NewCbvSrvUavHeap(dev, 64, "resource_views")
	require.NoError(t, err)
	defer views.Release()

	scene := NewRaytracingScene(device.BuildFlagNone, "static_scene")
	defer scene.Release()
	blas := scene.AddBlas(device.BuildFlagNone)
	scene.AddMesh(blas, newStubMesh(t, dev, views), 0)
	require.NoError(t, scene.Build(dev, q, views))

	ctx, err := q.RequestContext()
	require.NoError(t, err)
	assert.Panics(t, func() {
		_ = scene.Update(dev, views, ctx.CommandList())
	})
}

func TestTlasBufferGrowthIsGrowOnly(t *testing.T) {
	dev, _, _, scene := newTestScene(t)

	blas := scene.blasList[0]

	tlas := newTlas(1, device.BuildFlagNone)
	identity := [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}
	require.NoError(t, tlas.AddInstance(blas, identity, 0xFF, 0))
	require.NoError(t, tlas.initInstanceBuffer(dev, "growth::instances"))
	defer tlas.release()

	resized, err := tlas.AllocateBuffers(dev, "growth")
	require.NoError(t, err)
	assert.True(t, resized, "first allocation always resizes")

	resized, err = tlas.AllocateBuffers(dev, "growth")
	require.NoError(t, err)
	assert.False(t, resized, "same requirement reuses the buffer")
	small := tlas.ResultBuffer().Size()

	for i := 0; i < 32; i++ {
		require.NoError(t, tlas.AddInstance(blas, identity, 0xFF, 0))
	}
	resized, err = tlas.AllocateBuffers(dev, "growth")
	require.NoError(t, err)
	assert.True(t, resized, "larger requirement reallocates")
	assert.Greater(t, tlas.ResultBuffer().Size(), small)

	resized, err = tlas.AllocateBuffers(dev, "growth")
	require.NoError(t, err)
	assert.False(t, resized)
}

func TestWriteInstancesReflectsTransformChanges(t *testing.T) {
	_, _, _, scene := newTestScene(t)

	tlas := scene.Tlas()
	transform := [12]float32{1, 0, 0, 5, 0, 1, 0, 6, 0, 0, 1, 7}
	tlas.SetInstanceTransform(0, transform)
	require.NoError(t, tlas.writeInstances())

	raw := tlas.instanceBuffer.(interface{ Contents() []byte }).Contents()
	decoded := device.DecodeInstanceDesc(raw[:device.InstanceDescSize])
	assert.Equal(t, transform, decoded.Transform)
	assert.Equal(t, uint8(0xFF), decoded.Mask())
	assert.Equal(t, uint32(0), decoded.InstanceID())
}
