package scene

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/math"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
)

// Camera constants live in one 256-byte upload buffer: view,
// projection and their inverses, 64 bytes each. 256 is also the
// required constant-buffer alignment, so no padding is needed.
const cameraBufferSize = 256

const transformBufferSize = 12 * 4

type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

// node pairs a mesh with its motion policy and the upload buffer its
// current row-major 3x4 transform is streamed through. Refits read the
// transform at build time, so writing the buffer is all an update
// needs on the CPU side.
type node struct {
	mesh            *Mesh
	policy          UpdatePolicy
	transformBuffer device.Buffer
	blasID          gpu.BlasID
}

// Scene owns the object list, the camera constants and the ray-tracing
// acceleration structures built over them.
type Scene struct {
	name string

	dev   device.Device
	views *gpu.CbvSrvUavHeap

	rt    *gpu.RaytracingScene
	nodes []*node

	cameraBuffer device.Buffer
	cameraCbv    gpu.Cbv

	built bool
}

func NewScene(dev device.Device, views *gpu.CbvSrvUavHeap, name string) (*Scene, error) {
	cameraBuffer, err := gpu.CreateBuffer(dev, cameraBufferSize,
		device.HeapTypeUpload, device.ResourceFlagNone,
		device.ResourceStateGenericRead, name+"::camera")
	if err != nil {
		return nil, err
	}

	s := &Scene{
		name:         name,
		dev:          dev,
		views:        views,
		rt:           gpu.NewRaytracingScene(device.BuildFlagPreferFastTrace, name),
		cameraBuffer: cameraBuffer,
	}
	s.cameraCbv = views.CreateCbv(device.ConstantBufferViewDesc{
		BufferAddress: cameraBuffer.GPUVirtualAddress(),
		Size:          cameraBufferSize,
	})
	return s, nil
}

// AddObject registers mesh under policy. Each object gets its own
// bottom-level structure so it can move independently. Objects cannot
// be added once the scene is built.
func (s *Scene) AddObject(mesh *Mesh, policy UpdatePolicy) error {
	if s.built {
		err := fmt.Errorf("scene %q: object list is immutable after build", s.name)
		core.LogError(err.Error())
		return err
	}

	label := fmt.Sprintf("%s::%s::transform", s.name, mesh.Name())
	transformBuffer, err := gpu.CreateBufferWithData(s.dev,
		device.ResourceFlagNone, device.ResourceStateGenericRead,
		encodeTransform(math.Mat4ToRowMajor3x4(policy.TransformAt(0))),
		label)
	if err != nil {
		return err
	}

	blasID := s.rt.AddBlas(device.BuildFlagAllowUpdate | device.BuildFlagPreferFastTrace)
	s.rt.AddMesh(blasID, mesh, transformBuffer.GPUVirtualAddress())

	s.nodes = append(s.nodes, &node{
		mesh:            mesh,
		policy:          policy,
		transformBuffer: transformBuffer,
		blasID:          blasID,
	})
	return nil
}

func (s *Scene) SetCamera(camera Camera) error {
	data := make([]byte, 0, cameraBufferSize)
	for _, m := range []mgl32.Mat4{
		camera.View,
		camera.Projection,
		camera.View.Inv(),
		camera.Projection.Inv(),
	} {
		for _, f := range m {
			data = binary.LittleEndian.AppendUint32(data, stdmath.Float32bits(f))
		}
	}
	return s.cameraBuffer.Write(0, data)
}

// Build runs the initial synchronous acceleration-structure build.
func (s *Scene) Build(queue *gpu.CommandQueue) error {
	if err := s.rt.Build(s.dev, queue, s.views); err != nil {
		return err
	}
	s.built = true
	core.LogInfo("scene %q built: %d objects", s.name, len(s.nodes))
	return nil
}

// Advance evaluates every policy at the given time and streams the
// resulting transforms into the refit-visible upload buffers.
func (s *Scene) Advance(seconds float64) error {
	for _, n := range s.nodes {
		transform := math.Mat4ToRowMajor3x4(n.policy.TransformAt(seconds))
		if err := n.transformBuffer.Write(0, encodeTransform(transform)); err != nil {
			return err
		}
	}
	return nil
}

// RecordUpdate records the per-frame refit and rebuild pass on the
// caller's command list. Advance must run first for this frame's
// transforms to be visible.
func (s *Scene) RecordUpdate(list device.CommandList) error {
	if !s.built {
		err := fmt.Errorf("scene %q: update before build", s.name)
		core.LogError(err.Error())
		return err
	}
	return s.rt.Update(s.dev, s.views, list)
}

func (s *Scene) Srv() (gpu.Srv, bool) {
	return s.rt.Srv()
}

func (s *Scene) CameraCbv() gpu.Cbv {
	return s.cameraCbv
}

func (s *Scene) MeshData() []gpu.MeshData {
	return s.rt.MeshData()
}

func (s *Scene) ObjectCount() int {
	return len(s.nodes)
}

// Release frees the structures and per-object buffers. Meshes belong
// to the caller and are not touched.
func (s *Scene) Release() {
	s.rt.Release()
	for _, n := range s.nodes {
		n.transformBuffer.Release()
	}
	s.cameraBuffer.Release()
}

func encodeTransform(transform [12]float32) []byte {
	data := make([]byte, transformBufferSize)
	for i, f := range transform {
		binary.LittleEndian.PutUint32(data[i*4:], stdmath.Float32bits(f))
	}
	return data
}
