package gpu

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/math"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

type BuildMode int

const (
	// FullBuild constructs the structure from scratch.
	FullBuild BuildMode = iota
	// Update refits an already-built structure in place. Only legal
	// when the structure was created with BuildFlagAllowUpdate.
	Update
)

type BlasID int

// Blas is a bottom-level acceleration structure: one per mesh group.
// Geometries are added before the first build and immutable after it;
// result and scratch buffers are allocated exactly once.
type Blas struct {
	id BlasID

	buffer        device.Buffer
	scratchBuffer device.Buffer

	buildFlags device.BuildFlags

	geometries []device.GeometryDesc
}

func newBlas(id BlasID, buildFlags device.BuildFlags) *Blas {
	return &Blas{id: id, buildFlags: buildFlags}
}

func (b *Blas) ID() BlasID {
	return b.id
}

func (b *Blas) AddGeometry(geometry device.GeometryDesc) {
	if b.buffer != nil {
		panic(fmt.Sprintf("blas[%d]: geometry list is immutable after the first build", b.id))
	}
	b.geometries = append(b.geometries, geometry)
}

func (b *Blas) GeometryCount() int {
	return len(b.geometries)
}

// ResultAddress is the GPU address instance descriptors reference.
func (b *Blas) ResultAddress() uint64 {
	if b.buffer == nil {
		panic(fmt.Sprintf("blas[%d]: allocateBuffers must be called first", b.id))
	}
	return b.buffer.GPUVirtualAddress()
}

// allocateBuffers sizes and creates the result and scratch buffers
// from the device-reported prebuild requirements. Bottom-level
// geometry counts are fixed at scene-build time, so this happens once.
func (b *Blas) allocateBuffers(dev device.Device, name string) error {
	if b.buffer != nil {
		return nil
	}
	if len(b.geometries) == 0 {
		panic(fmt.Sprintf("blas[%d]: build requested with no geometry", b.id))
	}

	info := dev.AccelerationStructurePrebuildInfo(b.inputs(FullBuild))

	scratch, err := CreateBuffer(dev,
		info.ScratchDataSize,
		device.HeapTypeDefault,
		device.ResourceFlagAllowUnorderedAccess,
		device.ResourceStateCommon,
		"Scratch buffer for "+name,
	)
	if err != nil {
		return err
	}

	buffer, err := CreateBuffer(dev,
		info.ResultDataMaxSize,
		device.HeapTypeDefault,
		device.ResourceFlagAccelerationStructure|device.ResourceFlagAllowUnorderedAccess,
		device.ResourceStateAccelerationStructure,
		name,
	)
	if err != nil {
		scratch.Release()
		return err
	}

	// The scratch buffer starts in COMMON and must transition to
	// UNORDERED_ACCESS before the first build.
	b.scratchBuffer = scratch
	b.buffer = buffer
	return nil
}

func (b *Blas) build(list device.CommandList) {
	b.record(list, FullBuild)
}

func (b *Blas) update(list device.CommandList) {
	b.record(list, Update)
}

func (b *Blas) record(list device.CommandList, mode BuildMode) {
	if b.buffer == nil || b.scratchBuffer == nil {
		panic(fmt.Sprintf("blas[%d]: allocateBuffers must be called first", b.id))
	}

	desc := device.BuildDesc{
		Inputs:         b.inputs(mode),
		DestAddress:    b.buffer.GPUVirtualAddress(),
		ScratchAddress: b.scratchBuffer.GPUVirtualAddress(),
	}
	if mode == Update {
		// Refit reads the previous structure as its source.
		desc.SourceAddress = b.buffer.GPUVirtualAddress()
	}

	list.BuildAccelerationStructure(desc)
}

func (b *Blas) inputs(mode BuildMode) device.BuildInputs {
	buildFlags := b.buildFlags
	if mode == Update {
		if b.buildFlags&device.BuildFlagAllowUpdate == 0 {
			panic(fmt.Sprintf("blas[%d]: update requested without BuildFlagAllowUpdate", b.id))
		}
		buildFlags |= device.BuildFlagPerformUpdate
	}
	return device.BuildInputs{
		Kind:       device.StructureBottomLevel,
		Flags:      buildFlags,
		Geometries: b.geometries,
	}
}

func (b *Blas) release() {
	if b.buffer != nil {
		b.buffer.Release()
	}
	if b.scratchBuffer != nil {
		b.scratchBuffer.Release()
	}
}

// Tlas is the top-level acceleration structure: one per scene. Unlike
// bottom-level structures it is always fully rebuilt per frame, and
// its buffers grow on demand when the instance set requires it.
type Tlas struct {
	id int

	buffer        device.Buffer
	scratchBuffer device.Buffer

	buildFlags device.BuildFlags

	instances      []device.InstanceDesc
	instanceBuffer device.Buffer
}

func newTlas(id int, buildFlags device.BuildFlags) *Tlas {
	return &Tlas{id: id, buildFlags: buildFlags}
}

// AddInstance appends an instance referencing blas's result buffer.
// Order determines the shader-visible instance index. The transform is
// row-major 3x4; the instance id is the blas id (24 bits).
func (t *Tlas) AddInstance(blas *Blas, transform [12]float32, mask uint8, contributionToHitGroupIndex uint32) error {
	instance, err := device.NewInstanceDesc(
		transform,
		blas.ResultAddress(),
		mask,
		uint32(blas.ID()),
		device.InstanceFlagNone,
		contributionToHitGroupIndex,
	)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	t.instances = append(t.instances, instance)
	return nil
}

func (t *Tlas) InstanceCount() int {
	return len(t.instances)
}

// SetInstanceTransform replaces the row-major 3x4 transform of one
// instance; the change reaches the GPU on the next writeInstances.
func (t *Tlas) SetInstanceTransform(index int, transform [12]float32) {
	t.instances[index].Transform = transform
}

// initInstanceBuffer creates the upload buffer instance records are
// written through. An empty scene still gets a minimal buffer, since
// zero instances is a legal top-level build.
func (t *Tlas) initInstanceBuffer(dev device.Device, name string) error {
	size := uint64(len(t.instances)) * device.InstanceDescSize
	if size == 0 {
		size = device.InstanceDescSize
	}
	buf, err := CreateBuffer(dev, size, device.HeapTypeUpload, device.ResourceFlagNone, device.ResourceStateGenericRead, name)
	if err != nil {
		return err
	}
	t.instanceBuffer = buf
	return t.writeInstances()
}

// writeInstances re-encodes every instance record into the upload
// buffer. Called once per frame before the top-level build so the GPU
// sees current transforms.
func (t *Tlas) writeInstances() error {
	if t.instanceBuffer == nil {
		panic(fmt.Sprintf("tlas[%d]: initInstanceBuffer must be called first", t.id))
	}
	if len(t.instances) == 0 {
		return nil
	}
	data := make([]byte, len(t.instances)*device.InstanceDescSize)
	for i := range t.instances {
		t.instances[i].Encode(data[i*device.InstanceDescSize:])
	}
	return t.instanceBuffer.Write(0, data)
}

// AllocateBuffers sizes result and scratch from the prebuild query,
// reusing buffers whose capacity already covers the requirement.
// Returns true iff the result buffer's GPU address changed: only then
// must the shader-resource view be recreated.
func (t *Tlas) AllocateBuffers(dev device.Device, name string) (bool, error) {
	info := dev.AccelerationStructurePrebuildInfo(t.inputs())

	if t.scratchBuffer == nil || t.scratchBuffer.Size() < info.ScratchDataSize {
		if t.scratchBuffer != nil {
			t.scratchBuffer.Release()
		}
		scratch, err := CreateBuffer(dev,
			info.ScratchDataSize,
			device.HeapTypeDefault,
			device.ResourceFlagAllowUnorderedAccess,
			device.ResourceStateCommon,
			"Scratch buffer for "+name,
		)
		if err != nil {
			return false, err
		}
		t.scratchBuffer = scratch
	}

	var prevAddress uint64
	if t.buffer != nil {
		prevAddress = t.buffer.GPUVirtualAddress()
	}

	if t.buffer == nil || t.buffer.Size() < info.ResultDataMaxSize {
		if t.buffer != nil {
			t.buffer.Release()
		}
		buffer, err := CreateBuffer(dev,
			info.ResultDataMaxSize,
			device.HeapTypeDefault,
			device.ResourceFlagAccelerationStructure|device.ResourceFlagAllowUnorderedAccess,
			device.ResourceStateAccelerationStructure,
			name,
		)
		if err != nil {
			return false, err
		}
		t.buffer = buffer
	}

	return prevAddress != t.buffer.GPUVirtualAddress(), nil
}

// ResultAddress is the GPU address the shader-resource view points at.
// Not stable across reallocation.
func (t *Tlas) ResultAddress() uint64 {
	if t.buffer == nil {
		panic(fmt.Sprintf("tlas[%d]: AllocateBuffers must be called first", t.id))
	}
	return t.buffer.GPUVirtualAddress()
}

func (t *Tlas) ResultBuffer() device.Buffer {
	return t.buffer
}

func (t *Tlas) build(list device.CommandList) {
	if t.instanceBuffer == nil {
		panic(fmt.Sprintf("tlas[%d]: initInstanceBuffer must be called first", t.id))
	}
	if t.buffer == nil || t.scratchBuffer == nil {
		panic(fmt.Sprintf("tlas[%d]: AllocateBuffers must be called first", t.id))
	}

	list.BuildAccelerationStructure(device.BuildDesc{
		Inputs:         t.inputs(),
		DestAddress:    t.buffer.GPUVirtualAddress(),
		ScratchAddress: t.scratchBuffer.GPUVirtualAddress(),
	})
}

func (t *Tlas) inputs() device.BuildInputs {
	var instanceAddress uint64
	if t.instanceBuffer != nil {
		instanceAddress = t.instanceBuffer.GPUVirtualAddress()
	}
	return device.BuildInputs{
		Kind:                  device.StructureTopLevel,
		Flags:                 t.buildFlags,
		InstanceCount:         uint32(len(t.instances)),
		InstanceBufferAddress: instanceAddress,
	}
}

func (t *Tlas) release() {
	if t.buffer != nil {
		t.buffer.Release()
	}
	if t.scratchBuffer != nil {
		t.scratchBuffer.Release()
	}
	if t.instanceBuffer != nil {
		t.instanceBuffer.Release()
	}
}

// InvalidViewHandle marks an unassigned bindless table slot.
const InvalidViewHandle = ^uint32(0)

// MeshData mirrors per-blas buffer handles into the shader-visible
// table consumed by hit groups.
type MeshData struct {
	IndexBufferHandle  uint32
	NormalBufferHandle uint32
}

// MeshSource is what the builder consumes from the mesh loader.
type MeshSource interface {
	IndexFormat() device.Format
	PositionFormat() device.Format
	IndexCount() uint32
	VertexCount() uint32
	IndexBufferAddress() uint64
	PositionBufferAddress() uint64
	PositionStride() uint64
	IndexSrv() Srv
	NormalSrv() Srv
}

// RaytracingScene owns the per-mesh bottom-level structures and the
// single top-level structure, and runs the full-build and per-frame
// update passes.
type RaytracingScene struct {
	name string

	blasList []*Blas
	tlas     *Tlas

	srv    Srv
	hasSrv bool

	meshData []MeshData
}

func NewRaytracingScene(tlasFlags device.BuildFlags, name string) *RaytracingScene {
	return &RaytracingScene{
		name: name,
		tlas: newTlas(0, tlasFlags),
	}
}

func (s *RaytracingScene) AddBlas(buildFlags device.BuildFlags) BlasID {
	id := BlasID(len(s.blasList))
	s.blasList = append(s.blasList, newBlas(id, buildFlags))
	s.meshData = append(s.meshData, MeshData{
		IndexBufferHandle:  InvalidViewHandle,
		NormalBufferHandle: InvalidViewHandle,
	})
	return id
}

// AddMesh appends mesh's triangles to the given bottom-level structure
// and records its buffer handles for the shader table.
// transformAddress optionally points at a row-major 3x4 transform the
// geometry is rebuilt against each refit; zero means none.
func (s *RaytracingScene) AddMesh(blasID BlasID, mesh MeshSource, transformAddress uint64) {
	s.blasList[blasID].AddGeometry(device.GeometryDesc{
		Transform3x4Address: transformAddress,
		IndexFormat:         mesh.IndexFormat(),
		VertexFormat:        mesh.PositionFormat(),
		IndexCount:          mesh.IndexCount(),
		VertexCount:         mesh.VertexCount(),
		IndexBufferAddress:  mesh.IndexBufferAddress(),
		VertexBufferAddress: mesh.PositionBufferAddress(),
		VertexStride:        mesh.PositionStride(),
		Opaque:              true,
	})

	s.meshData[blasID] = MeshData{
		IndexBufferHandle:  mesh.IndexSrv().Handle(),
		NormalBufferHandle: mesh.NormalSrv().Handle(),
	}
}

// Build performs the initial full build of every bottom-level
// structure and the top-level structure, synchronously: the call
// returns once the GPU has finished, so result addresses are stable
// for the first frame.
func (s *RaytracingScene) Build(dev device.Device, queue *CommandQueue, views *CbvSrvUavHeap) error {
	ctx, err := queue.RequestContext()
	if err != nil {
		return err
	}

	if err := s.recordBuild(dev, views, ctx.CommandList()); err != nil {
		queue.Discard(ctx)
		return err
	}

	fenceValue, err := queue.Execute(ctx)
	if err != nil {
		return err
	}
	return queue.Wait(fenceValue)
}

func (s *RaytracingScene) recordBuild(dev device.Device, views *CbvSrvUavHeap, list device.CommandList) error {
	barriers := make([]device.Barrier, 0, len(s.blasList))

	for _, blas := range s.blasList {
		name := fmt.Sprintf("%s::blas[%d]", s.name, blas.id)
		if err := blas.allocateBuffers(dev, name); err != nil {
			return err
		}
		barriers = append(barriers, TransitionBarrier(blas.scratchBuffer,
			device.ResourceStateCommon, device.ResourceStateUnorderedAccess))
	}
	list.ResourceBarrier(barriers)
	barriers = barriers[:0]

	identity := math.Mat4ToRowMajor3x4(mgl32.Ident4())
	for _, blas := range s.blasList {
		blas.build(list)
		barriers = append(barriers, UAVBarrier(blas.buffer))

		if err := s.tlas.AddInstance(blas, identity, 0xFF, 0); err != nil {
			return err
		}
	}
	list.ResourceBarrier(barriers)

	name := fmt.Sprintf("%s::tlas[%d]::instance_buffer", s.name, s.tlas.id)
	if err := s.tlas.initInstanceBuffer(dev, name); err != nil {
		return err
	}

	name = fmt.Sprintf("%s::tlas[%d]", s.name, s.tlas.id)
	resized, err := s.tlas.AllocateBuffers(dev, name)
	if err != nil {
		return err
	}

	s.tlas.build(list)

	if resized {
		s.initSrv(views)
	}
	return nil
}

// Update runs the per-frame pass: refit every bottom-level structure,
// regrow top-level buffers if needed, refresh the instance upload
// buffer, rebuild the top-level structure, and fence its result for
// shader reads. The recording happens on the caller's command list.
func (s *RaytracingScene) Update(dev device.Device, views *CbvSrvUavHeap, list device.CommandList) error {
	barriers := make([]device.Barrier, 0, len(s.blasList))

	for _, blas := range s.blasList {
		blas.update(list)
		barriers = append(barriers, UAVBarrier(blas.buffer))
	}
	list.ResourceBarrier(barriers)

	name := fmt.Sprintf("%s::tlas[%d]", s.name, s.tlas.id)
	resized, err := s.tlas.AllocateBuffers(dev, name)
	if err != nil {
		return err
	}

	if err := s.tlas.writeInstances(); err != nil {
		return err
	}

	s.tlas.build(list)

	if resized {
		s.initSrv(views)
	}

	list.ResourceBarrier([]device.Barrier{UAVBarrier(s.tlas.buffer)})

	return nil
}

// initSrv (re)creates the shader-resource view over the top-level
// result buffer. The resource argument stays nil: for
// acceleration-structure views the location is the GPU address in the
// desc.
func (s *RaytracingScene) initSrv(views *CbvSrvUavHeap) {
	s.srv = views.CreateSrv(nil, device.ShaderResourceViewDesc{
		Format:                       device.FormatUnknown,
		Dimension:                    device.SRVDimensionAccelerationStructure,
		AccelerationStructureAddress: s.tlas.ResultAddress(),
	})
	s.hasSrv = true
}

// Srv returns the top-level structure's view handle; ok is false
// before the first build.
func (s *RaytracingScene) Srv() (Srv, bool) {
	return s.srv, s.hasSrv
}

func (s *RaytracingScene) MeshData() []MeshData {
	return s.meshData
}

func (s *RaytracingScene) Tlas() *Tlas {
	return s.tlas
}

// Release frees every structure buffer. Callers must flush the queue
// first so nothing is still in flight.
func (s *RaytracingScene) Release() {
	for _, blas := range s.blasList {
		blas.release()
	}
	s.tlas.release()
}
