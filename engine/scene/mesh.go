package scene

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
)

const (
	positionStride = 12
	normalStride   = 12
	indexStride    = 4
)

// MeshDesc is the CPU-side geometry handed to NewMesh. Positions and
// normals are parallel arrays; indices are triangle-list uint32.
type MeshDesc struct {
	Name      string
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
}

// Mesh holds the GPU-resident geometry of one object: default-heap
// position, normal and index buffers plus the shader-resource views
// hit groups fetch attributes through. It satisfies gpu.MeshSource.
type Mesh struct {
	name string

	positionBuffer device.Buffer
	normalBuffer   device.Buffer
	indexBuffer    device.Buffer

	indexSrv  gpu.Srv
	normalSrv gpu.Srv

	indexCount  uint32
	vertexCount uint32
}

// NewMesh uploads desc through the copy queue into default-heap
// buffers and registers index/normal views. The call is synchronous:
// staging buffers are released before it returns.
func NewMesh(dev device.Device, copyQueue *gpu.CommandQueue, views *gpu.CbvSrvUavHeap, desc MeshDesc) (*Mesh, error) {
	if len(desc.Positions) == 0 || len(desc.Indices) == 0 {
		err := fmt.Errorf("mesh %q: empty geometry", desc.Name)
		core.LogError(err.Error())
		return nil, err
	}
	if len(desc.Normals) != len(desc.Positions) {
		err := fmt.Errorf("mesh %q: %d normals for %d positions", desc.Name, len(desc.Normals), len(desc.Positions))
		core.LogError(err.Error())
		return nil, err
	}

	ctx, err := copyQueue.RequestContext()
	if err != nil {
		return nil, err
	}
	list := ctx.CommandList()

	m := &Mesh{
		name:        desc.Name,
		indexCount:  uint32(len(desc.Indices)),
		vertexCount: uint32(len(desc.Positions)),
	}

	var stagings []device.Buffer
	releaseAll := func(buffers []device.Buffer) {
		for _, b := range buffers {
			if b != nil {
				b.Release()
			}
		}
	}

	upload := func(data []byte, label string) (device.Buffer, error) {
		staging, err := gpu.CreateBufferWithData(dev,
			device.ResourceFlagNone, device.ResourceStateGenericRead,
			data, label+"::staging")
		if err != nil {
			return nil, err
		}
		stagings = append(stagings, staging)

		dst, err := gpu.CreateBuffer(dev, uint64(len(data)),
			device.HeapTypeDefault, device.ResourceFlagNone,
			device.ResourceStateCopyDest, label)
		if err != nil {
			return nil, err
		}
		list.CopyBufferRegion(dst, 0, staging, 0, uint64(len(data)))
		return dst, nil
	}

	m.positionBuffer, err = upload(encodeVec3s(desc.Positions), desc.Name+"::positions")
	if err == nil {
		m.normalBuffer, err = upload(encodeVec3s(desc.Normals), desc.Name+"::normals")
	}
	if err == nil {
		m.indexBuffer, err = upload(encodeIndices(desc.Indices), desc.Name+"::indices")
	}
	if err != nil {
		copyQueue.Discard(ctx)
		releaseAll(stagings)
		m.Release()
		return nil, err
	}

	list.ResourceBarrier([]device.Barrier{
		gpu.TransitionBarrier(m.positionBuffer, device.ResourceStateCopyDest, device.ResourceStateAllShaderResource),
		gpu.TransitionBarrier(m.normalBuffer, device.ResourceStateCopyDest, device.ResourceStateAllShaderResource),
		gpu.TransitionBarrier(m.indexBuffer, device.ResourceStateCopyDest, device.ResourceStateAllShaderResource),
	})

	value, err := copyQueue.Execute(ctx)
	if err == nil {
		err = copyQueue.Wait(value)
	}
	releaseAll(stagings)
	if err != nil {
		m.Release()
		return nil, err
	}

	m.indexSrv = views.CreateSrv(m.indexBuffer, device.ShaderResourceViewDesc{
		Format:      device.FormatR32Uint,
		Dimension:   device.SRVDimensionBuffer,
		NumElements: m.indexCount,
	})
	m.normalSrv = views.CreateSrv(m.normalBuffer, device.ShaderResourceViewDesc{
		Dimension:           device.SRVDimensionBuffer,
		NumElements:         m.vertexCount,
		StructureByteStride: normalStride,
	})

	return m, nil
}

func (m *Mesh) Name() string {
	return m.name
}

func (m *Mesh) IndexFormat() device.Format    { return device.FormatR32Uint }
func (m *Mesh) PositionFormat() device.Format { return device.FormatR32G32B32Float }
func (m *Mesh) IndexCount() uint32            { return m.indexCount }
func (m *Mesh) VertexCount() uint32           { return m.vertexCount }
func (m *Mesh) PositionStride() uint64        { return positionStride }
func (m *Mesh) IndexSrv() gpu.Srv             { return m.indexSrv }
func (m *Mesh) NormalSrv() gpu.Srv            { return m.normalSrv }

func (m *Mesh) IndexBufferAddress() uint64 {
	return m.indexBuffer.GPUVirtualAddress()
}

func (m *Mesh) PositionBufferAddress() uint64 {
	return m.positionBuffer.GPUVirtualAddress()
}

func (m *Mesh) Release() {
	for _, b := range []device.Buffer{m.positionBuffer, m.normalBuffer, m.indexBuffer} {
		if b != nil {
			b.Release()
		}
	}
	m.positionBuffer, m.normalBuffer, m.indexBuffer = nil, nil, nil
}

func encodeVec3s(vs []mgl32.Vec3) []byte {
	data := make([]byte, len(vs)*positionStride)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(data[i*positionStride:], stdmath.Float32bits(v.X()))
		binary.LittleEndian.PutUint32(data[i*positionStride+4:], stdmath.Float32bits(v.Y()))
		binary.LittleEndian.PutUint32(data[i*positionStride+8:], stdmath.Float32bits(v.Z()))
	}
	return data
}

func encodeIndices(indices []uint32) []byte {
	data := make([]byte, len(indices)*indexStride)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(data[i*indexStride:], idx)
	}
	return data
}
