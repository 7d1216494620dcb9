package device

import (
	"encoding/binary"
	"fmt"
	"math"
)

type HeapType int

const (
	// HeapTypeDefault is device-local memory, not CPU-mappable.
	HeapTypeDefault HeapType = iota
	// HeapTypeUpload is CPU-writable memory the GPU reads directly.
	HeapTypeUpload
)

type ResourceFlags uint32

const (
	ResourceFlagNone                  ResourceFlags = 0
	ResourceFlagAllowUnorderedAccess  ResourceFlags = 1 << 0
	ResourceFlagAccelerationStructure ResourceFlags = 1 << 1
)

type ResourceState int

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateGenericRead
	ResourceStateUnorderedAccess
	ResourceStateAccelerationStructure
	ResourceStateAllShaderResource
	ResourceStateRenderTarget
	ResourceStatePresent
	ResourceStateCopyDest
)

type DescriptorHeapKind int

const (
	// DescriptorHeapCbvSrvUav is the shader-visible resource table.
	DescriptorHeapCbvSrvUav DescriptorHeapKind = iota
	DescriptorHeapRtv
	DescriptorHeapDsv
)

func (k DescriptorHeapKind) ShaderVisible() bool {
	return k == DescriptorHeapCbvSrvUav
}

type Format int

const (
	FormatUnknown Format = iota
	FormatR32G32B32Float
	FormatR16Uint
	FormatR32Uint
	FormatR8G8B8A8Unorm
)

type BufferDesc struct {
	Size         uint64
	Heap         HeapType
	Flags        ResourceFlags
	InitialState ResourceState
	Label        string
}

type BarrierType int

const (
	// BarrierTransition moves a resource between states.
	BarrierTransition BarrierType = iota
	// BarrierUAV orders unordered-access writes against subsequent
	// reads of the same resource.
	BarrierUAV
)

type Barrier struct {
	Type        BarrierType
	Resource    Buffer
	StateBefore ResourceState
	StateAfter  ResourceState
}

type StructureKind int

const (
	StructureBottomLevel StructureKind = iota
	StructureTopLevel
)

type BuildFlags uint32

const (
	BuildFlagNone            BuildFlags = 0
	BuildFlagAllowUpdate     BuildFlags = 1 << 0
	BuildFlagPreferFastTrace BuildFlags = 1 << 1
	// BuildFlagPerformUpdate marks an incremental refit; only legal
	// when the structure was created with BuildFlagAllowUpdate.
	BuildFlagPerformUpdate BuildFlags = 1 << 2
)

// GeometryDesc references the triangle data of one geometry inside a
// bottom-level structure. Addresses are GPU virtual addresses; a zero
// Transform3x4Address means no per-geometry transform.
type GeometryDesc struct {
	Transform3x4Address uint64
	IndexFormat         Format
	VertexFormat        Format
	IndexCount          uint32
	VertexCount         uint32
	IndexBufferAddress  uint64
	VertexBufferAddress uint64
	VertexStride        uint64
	Opaque              bool
}

// BuildInputs describe an acceleration-structure build: geometry list
// for bottom-level, instance buffer for top-level.
type BuildInputs struct {
	Kind  StructureKind
	Flags BuildFlags

	Geometries []GeometryDesc

	InstanceCount         uint32
	InstanceBufferAddress uint64
}

// PrebuildInfo is the device-reported buffer sizing for a build.
type PrebuildInfo struct {
	ResultDataMaxSize     uint64
	ScratchDataSize       uint64
	UpdateScratchDataSize uint64
}

// BuildDesc is the recorded build command. SourceAddress is zero for a
// full build and the previous result address for an update.
type BuildDesc struct {
	Inputs         BuildInputs
	DestAddress    uint64
	ScratchAddress uint64
	SourceAddress  uint64
}

type InstanceFlags uint8

const (
	InstanceFlagNone                InstanceFlags = 0
	InstanceFlagTriangleCullDisable InstanceFlags = 1 << 0
	InstanceFlagForceOpaque         InstanceFlags = 1 << 2
)

// Max24Bit bounds the instance id and the shader-table contribution
// offset, which share a 32-bit word with an 8-bit field each.
const Max24Bit = 0xFF_FFFF

// InstanceDescSize is the wire size of one packed instance record:
// 48 bytes of transform, two 32-bit bitfields, one 64-bit address.
const InstanceDescSize = 64

// InstanceDesc is one top-level instance in the device's native bit
// layout. Construct with NewInstanceDesc so the 24-bit fields are
// range-checked.
type InstanceDesc struct {
	Transform             [12]float32
	AccelerationStructure uint64

	bitfield1 uint32
	bitfield2 uint32
}

func NewInstanceDesc(
	transform [12]float32,
	accelerationStructure uint64,
	mask uint8,
	instanceID uint32,
	flags InstanceFlags,
	contributionToHitGroupIndex uint32,
) (InstanceDesc, error) {
	if instanceID > Max24Bit {
		return InstanceDesc{}, fmt.Errorf("instance id %#x exceeds 24 bits", instanceID)
	}
	if contributionToHitGroupIndex > Max24Bit {
		return InstanceDesc{}, fmt.Errorf("hit-group contribution %#x exceeds 24 bits", contributionToHitGroupIndex)
	}
	return InstanceDesc{
		Transform:             transform,
		AccelerationStructure: accelerationStructure,
		bitfield1:             uint32(mask)<<24 | instanceID,
		bitfield2:             uint32(flags)<<24 | contributionToHitGroupIndex,
	}, nil
}

func (d *InstanceDesc) Mask() uint8 {
	return uint8(d.bitfield1 >> 24)
}

func (d *InstanceDesc) InstanceID() uint32 {
	return d.bitfield1 & Max24Bit
}

func (d *InstanceDesc) Flags() InstanceFlags {
	return InstanceFlags(d.bitfield2 >> 24)
}

func (d *InstanceDesc) ContributionToHitGroupIndex() uint32 {
	return d.bitfield2 & Max24Bit
}

// Encode writes the packed little-endian record into dst, which must
// hold InstanceDescSize bytes.
func (d *InstanceDesc) Encode(dst []byte) {
	_ = dst[InstanceDescSize-1]
	for i, f := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], d.bitfield1)
	binary.LittleEndian.PutUint32(dst[52:], d.bitfield2)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelerationStructure)
}

// DecodeInstanceDesc reads a record previously written by Encode.
func DecodeInstanceDesc(src []byte) InstanceDesc {
	_ = src[InstanceDescSize-1]
	var d InstanceDesc
	for i := range d.Transform {
		d.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	d.bitfield1 = binary.LittleEndian.Uint32(src[48:])
	d.bitfield2 = binary.LittleEndian.Uint32(src[52:])
	d.AccelerationStructure = binary.LittleEndian.Uint64(src[56:])
	return d
}

type ConstantBufferViewDesc struct {
	BufferAddress uint64
	Size          uint32
}

type SRVDimension int

const (
	SRVDimensionBuffer SRVDimension = iota
	// SRVDimensionAccelerationStructure views a TLAS result buffer;
	// the location comes from the GPU address in the desc, not from a
	// resource argument.
	SRVDimensionAccelerationStructure
)

type ShaderResourceViewDesc struct {
	Format    Format
	Dimension SRVDimension

	FirstElement        uint32
	NumElements         uint32
	StructureByteStride uint32

	AccelerationStructureAddress uint64
}

type UnorderedAccessViewDesc struct {
	Format              Format
	FirstElement        uint32
	NumElements         uint32
	StructureByteStride uint32
}
